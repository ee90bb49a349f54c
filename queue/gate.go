package queue

import (
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GateConfig bounds how fast and how much a dispatch loop claims.
type GateConfig struct {
	// RateLimit is the sustained claims per second. Zero disables it.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int

	// MaxInFlight caps claimed runs that have not finished. Zero means
	// unbounded.
	MaxInFlight int
}

// Gate is checked before every claim so a worker never takes a run it
// cannot start right away. It is safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	slots   *semaphore.Weighted
	limiter *rate.Limiter
	active  int
}

// NewGate builds a Gate. The zero config admits everything.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{}
	if cfg.MaxInFlight > 0 {
		g.slots = semaphore.NewWeighted(int64(cfg.MaxInFlight))
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

// Acquire reserves a slot without blocking. The caller must call Release
// when the run finishes, or immediately when the claim came back empty.
func (g *Gate) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.slots != nil && !g.slots.TryAcquire(1) {
		return false
	}
	if g.limiter != nil && !g.limiter.Allow() {
		if g.slots != nil {
			g.slots.Release(1)
		}
		return false
	}
	g.active++
	return true
}

// Release frees a slot.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == 0 {
		return
	}
	g.active--
	if g.slots != nil {
		g.slots.Release(1)
	}
}

// Active returns the number of held slots.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
