package job

import (
	"context"
	"time"

	"github.com/xraph/fleetcron/id"
)

// ListOpts controls filtering and pagination for job list queries.
type ListOpts struct {
	// EnabledOnly restricts the result to enabled jobs.
	EnabledOnly bool
	// DueBefore, when non-zero, keeps jobs whose next_execute_at is at or
	// before it. Jobs with no next_execute_at are excluded.
	DueBefore time.Time
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for job definitions.
type Store interface {
	// CreateJob persists a new definition.
	CreateJob(ctx context.Context, d *Definition) error

	// GetJob reads a definition. Returns fleetcron.ErrJobNotFound when absent.
	GetJob(ctx context.Context, jobID id.JobID) (*Definition, error)

	// ListJobs returns definitions ordered by next_execute_at, then ID.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Definition, error)

	// UpdateNextExecuteAt records the next fire time.
	UpdateNextExecuteAt(ctx context.Context, jobID id.JobID, next time.Time) error

	// MarkExecuted records the start of an execution.
	MarkExecuted(ctx context.Context, jobID id.JobID, at time.Time) error

	// SetEnabled flips the enabled flag.
	SetEnabled(ctx context.Context, jobID id.JobID, enabled bool) error

	// DeleteJob removes a definition.
	DeleteJob(ctx context.Context, jobID id.JobID) error
}
