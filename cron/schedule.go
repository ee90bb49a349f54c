package cron

import (
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/fleetcron"
)

// cronParser accepts standard 5-field expressions, an optional leading
// seconds field ("*/5 * * * * *") and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.SecondOptional | cronlib.Minute | cronlib.Hour | cronlib.Dom |
		cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression. Failures wrap
// fleetcron.ErrInvalidSchedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", fleetcron.ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// Next returns the first fire time strictly after now. ok is false when the
// expression never fires again.
func Next(sched cronlib.Schedule, now time.Time) (time.Time, bool) {
	next := sched.Next(now)
	return next, !next.IsZero()
}

// scheduleCache memoizes parsed expressions; many jobs share a handful of
// schedules and parsing happens on every reconciliation.
type scheduleCache struct {
	mu     sync.RWMutex
	parsed map[string]cronlib.Schedule
}

func newScheduleCache() *scheduleCache {
	return &scheduleCache{parsed: make(map[string]cronlib.Schedule)}
}

func (c *scheduleCache) get(expr string) (cronlib.Schedule, error) {
	c.mu.RLock()
	sched, ok := c.parsed[expr]
	c.mu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.parsed[expr] = sched
	c.mu.Unlock()
	return sched, nil
}
