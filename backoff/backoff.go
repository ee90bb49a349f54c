// Package backoff provides delay strategies for the dispatch loop: a fixed
// delay between retry attempts of a failing job, and a growing delay after
// queue or store errors. All strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	f := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if f > math.MaxInt64 {
		f = math.MaxInt64
	}
	d := time.Duration(f)
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Jitter
// ──────────────────────────────────────────────────

// Jitter spreads another strategy's delay by up to Fraction in either
// direction, so workers that failed together do not retry together.
type Jitter struct {
	Base     Strategy
	Fraction float64
}

// WithJitter wraps base. fraction is clamped to [0, 1].
func WithJitter(base Strategy, fraction float64) *Jitter {
	return &Jitter{Base: base, Fraction: min(max(fraction, 0), 1)}
}

// Delay returns the base delay scaled by a random factor in
// [1-Fraction, 1+Fraction].
func (j *Jitter) Delay(attempt int) time.Duration {
	d := j.Base.Delay(attempt)
	factor := 1 + j.Fraction*(2*rand.Float64()-1) //nolint:gosec // jitter does not need crypto rand
	return time.Duration(float64(d) * factor)
}

// ──────────────────────────────────────────────────
// Defaults
// ──────────────────────────────────────────────────

// DefaultRetry is the delay between attempts of a failing job: 200ms.
func DefaultRetry() Strategy {
	return NewConstant(200 * time.Millisecond)
}

// DefaultError is the dispatch loop's delay after a queue error: 100ms
// doubling to 5s, with 20% jitter.
func DefaultError() Strategy {
	return WithJitter(NewExponential(100*time.Millisecond, 5*time.Second), 0.2)
}
