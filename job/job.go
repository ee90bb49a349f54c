package job

import (
	"time"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/id"
)

// Definition is a cron-scheduled command bound to one host or one group.
type Definition struct {
	fleetcron.Entity

	ID          id.JobID `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`

	// Schedule is a cron expression with an optional leading seconds field.
	Schedule string `json:"cron_expression"`

	// HostID and GroupID name the target. When both are set the group wins
	// at execution time.
	HostID  id.HostID  `json:"host_id,omitzero"`
	GroupID id.GroupID `json:"group_id,omitzero"`

	Command string `json:"command"`
	Enabled bool   `json:"enabled"`

	// TimeoutSeconds overrides the execute-stage timeout when positive.
	TimeoutSeconds int `json:"timeout,omitempty"`

	// RetryCount is the number of synchronous retries after a failed run.
	// Nil disables both retries and the disable-on-exhaustion policy.
	RetryCount *int `json:"retry_count,omitempty"`

	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
	NextExecuteAt  *time.Time `json:"next_execute_at,omitempty"`
}

// IsFleet reports whether the job fans out over a group.
func (d *Definition) IsFleet() bool {
	return !d.GroupID.IsNil()
}

// ExecTimeout returns the per-job execute timeout, or fallback when unset.
func (d *Definition) ExecTimeout(fallback time.Duration) time.Duration {
	if d.TimeoutSeconds > 0 {
		return time.Duration(d.TimeoutSeconds) * time.Second
	}
	return fallback
}

// Retries returns the retry budget and whether the retry policy applies.
func (d *Definition) Retries() (int, bool) {
	if d.RetryCount == nil {
		return 0, false
	}
	return max(*d.RetryCount, 0), true
}
