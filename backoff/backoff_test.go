package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/fleetcron/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(200 * time.Millisecond)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 200*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 200*time.Millisecond)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(100*time.Millisecond, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1600 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(100*time.Millisecond, 5*time.Second)

	for _, attempt := range []int{7, 20, 200, 5000} {
		if got := e.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v (capped at Max)", attempt, got, 5*time.Second)
		}
	}
}

func TestJitter_StaysInRange(t *testing.T) {
	j := backoff.WithJitter(backoff.NewConstant(time.Second), 0.2)

	for range 1000 {
		got := j.Delay(1)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("Delay = %v, want within [800ms, 1.2s]", got)
		}
	}
}

func TestJitter_ClampsFraction(t *testing.T) {
	if got := backoff.WithJitter(backoff.NewConstant(time.Second), 3).Fraction; got != 1 {
		t.Errorf("Fraction = %v, want 1", got)
	}
	if got := backoff.WithJitter(backoff.NewConstant(time.Second), -1).Delay(1); got != time.Second {
		t.Errorf("Delay with zero jitter = %v, want 1s", got)
	}
}

func TestDefaults(t *testing.T) {
	if got := backoff.DefaultRetry().Delay(3); got != 200*time.Millisecond {
		t.Errorf("DefaultRetry().Delay(3) = %v, want 200ms", got)
	}
	if got := backoff.DefaultError().Delay(50); got > 6*time.Second {
		t.Errorf("DefaultError().Delay(50) = %v, want at most 6s", got)
	}
}
