package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-asserts each extension once at registration time and
// caches per-hook lists, so emitting is a plain slice walk.
//
// Register all extensions before starting the engine; the registry is
// not safe for concurrent registration.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobClaimed       []entry[JobClaimed]
	jobSucceeded     []entry[JobSucceeded]
	jobAttemptFailed []entry[JobAttemptFailed]
	jobRetrying      []entry[JobRetrying]
	jobDisabled      []entry[JobDisabled]
	hostExecuted     []entry[HostExecuted]
	scheduleSynced   []entry[ScheduleSynced]
	jobsReclaimed    []entry[JobsReclaimed]
	shutdown         []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

func collect[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name, h})
	}
	return list
}

// Register adds an extension and caches it under every hook it
// implements. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.jobClaimed = collect(r.jobClaimed, name, e)
	r.jobSucceeded = collect(r.jobSucceeded, name, e)
	r.jobAttemptFailed = collect(r.jobAttemptFailed, name, e)
	r.jobRetrying = collect(r.jobRetrying, name, e)
	r.jobDisabled = collect(r.jobDisabled, name, e)
	r.hostExecuted = collect(r.hostExecuted, name, e)
	r.scheduleSynced = collect(r.scheduleSynced, name, e)
	r.jobsReclaimed = collect(r.jobsReclaimed, name, e)
	r.shutdown = collect(r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobClaimed notifies all extensions that implement JobClaimed.
func (r *Registry) EmitJobClaimed(ctx context.Context, jobID id.JobID) {
	for _, e := range r.jobClaimed {
		if err := e.hook.OnJobClaimed(ctx, jobID); err != nil {
			r.logHookError("OnJobClaimed", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, d *job.Definition, elapsed time.Duration) {
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, d, elapsed); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobAttemptFailed notifies all extensions that implement JobAttemptFailed.
func (r *Registry) EmitJobAttemptFailed(ctx context.Context, d *job.Definition, attempt int, jobErr error) {
	for _, e := range r.jobAttemptFailed {
		if err := e.hook.OnJobAttemptFailed(ctx, d, attempt, jobErr); err != nil {
			r.logHookError("OnJobAttemptFailed", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, d *job.Definition, attempt int, delay time.Duration) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, d, attempt, delay); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDisabled notifies all extensions that implement JobDisabled.
func (r *Registry) EmitJobDisabled(ctx context.Context, d *job.Definition, jobErr error) {
	for _, e := range r.jobDisabled {
		if err := e.hook.OnJobDisabled(ctx, d, jobErr); err != nil {
			r.logHookError("OnJobDisabled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Execution and scheduler emitters
// ──────────────────────────────────────────────────

// EmitHostExecuted notifies all extensions that implement HostExecuted.
func (r *Registry) EmitHostExecuted(ctx context.Context, server string, exitCode int, execErr error, elapsed time.Duration) {
	for _, e := range r.hostExecuted {
		if err := e.hook.OnHostExecuted(ctx, server, exitCode, execErr, elapsed); err != nil {
			r.logHookError("OnHostExecuted", e.name, err)
		}
	}
}

// EmitScheduleSynced notifies all extensions that implement ScheduleSynced.
func (r *Registry) EmitScheduleSynced(ctx context.Context, phase string, queued int) {
	for _, e := range r.scheduleSynced {
		if err := e.hook.OnScheduleSynced(ctx, phase, queued); err != nil {
			r.logHookError("OnScheduleSynced", e.name, err)
		}
	}
}

// EmitJobsReclaimed notifies all extensions that implement JobsReclaimed.
func (r *Registry) EmitJobsReclaimed(ctx context.Context, jobIDs []id.JobID) {
	for _, e := range r.jobsReclaimed {
		if err := e.hook.OnJobsReclaimed(ctx, jobIDs); err != nil {
			r.logHookError("OnJobsReclaimed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors never propagate.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
