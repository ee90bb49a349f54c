package ext

import (
	"context"
	"time"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobClaimed is called when a dispatch loop claims a due job.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, jobID id.JobID) error
}

// JobSucceeded is called after an attempt of a job succeeds.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, d *job.Definition, elapsed time.Duration) error
}

// JobAttemptFailed is called after each failed attempt. attempt is
// 1-indexed.
type JobAttemptFailed interface {
	OnJobAttemptFailed(ctx context.Context, d *job.Definition, attempt int, err error) error
}

// JobRetrying is called before a failed job is attempted again.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, d *job.Definition, attempt int, delay time.Duration) error
}

// JobDisabled is called after a job exhausted its retries and was
// disabled.
type JobDisabled interface {
	OnJobDisabled(ctx context.Context, d *job.Definition, err error) error
}

// ──────────────────────────────────────────────────
// Execution hooks
// ──────────────────────────────────────────────────

// HostExecuted is called once per host after a remote execution ends.
// err is nil when the command ran to completion.
type HostExecuted interface {
	OnHostExecuted(ctx context.Context, server string, exitCode int, err error, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Scheduler hooks
// ──────────────────────────────────────────────────

// ScheduleSynced is called after each reconcile pass.
type ScheduleSynced interface {
	OnScheduleSynced(ctx context.Context, phase string, queued int) error
}

// JobsReclaimed is called when expired claims are returned to pending.
type JobsReclaimed interface {
	OnJobsReclaimed(ctx context.Context, jobIDs []id.JobID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
