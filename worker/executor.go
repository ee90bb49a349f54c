// Package worker runs claimed jobs. A Pool claims due job ids from the
// queue and hands each to an Executor in its own goroutine; the Executor
// loads the definition, runs it over SSH with synchronous retries, disables
// it once retries are exhausted and schedules its next run.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/backoff"
	"github.com/xraph/fleetcron/ext"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
	"github.com/xraph/fleetcron/middleware"
	"github.com/xraph/fleetcron/queue"
	"github.com/xraph/fleetcron/sshexec"
)

// Runner executes commands remotely. *sshexec.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req sshexec.Request) (*sshexec.Result, error)
	RunFleet(ctx context.Context, req sshexec.Request) (*sshexec.Stream, error)
}

// Rescheduler computes and enqueues a job's next run from a fresh read.
// *cron.Reconciler satisfies it.
type Rescheduler interface {
	ReconcileOne(ctx context.Context, jobID id.JobID) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRetryBackoff sets the delay between attempts. Default 200ms constant.
func WithRetryBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.retry = s }
}

// WithMiddleware wraps every attempt.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// Executor processes one claimed job run.
type Executor struct {
	jobs       job.Store
	queue      queue.Queue
	runner     Runner
	scheduler  Rescheduler
	extensions *ext.Registry
	retry      backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(
	jobs job.Store,
	q queue.Queue,
	runner Runner,
	scheduler Rescheduler,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	e := &Executor{
		jobs:       jobs,
		queue:      q,
		runner:     runner,
		scheduler:  scheduler,
		extensions: extensions,
		retry:      backoff.DefaultRetry(),
		mw:         middleware.Chain(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs a claimed job: ack the claim, load the definition, execute
// with retries, record the run and schedule the next one. The returned
// error is the final attempt's failure, if any.
func (e *Executor) Process(ctx context.Context, jobID id.JobID) error {
	if err := e.queue.Ack(ctx, jobID); err != nil {
		return fmt.Errorf("worker: ack %s: %w", jobID, err)
	}

	d, err := e.jobs.GetJob(ctx, jobID)
	switch {
	case errors.Is(err, fleetcron.ErrJobNotFound):
		e.logger.Warn("claimed job no longer exists", slog.String("job_id", jobID.String()))
		return e.queue.CancelPending(ctx, jobID)
	case err != nil:
		return fmt.Errorf("worker: load %s: %w", jobID, err)
	case !d.Enabled:
		e.logger.Info("claimed job is disabled, skipping", slog.String("job_id", jobID.String()))
		return e.queue.CancelPending(ctx, jobID)
	}

	runErr := e.execute(ctx, d)

	if err := e.jobs.MarkExecuted(ctx, d.ID, time.Now().UTC()); err != nil {
		e.logger.Error("failed to record execution time",
			slog.String("job_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	// Runs after any disable write, so a disabled job is not re-enqueued.
	if err := e.scheduler.ReconcileOne(ctx, d.ID); err != nil {
		e.logger.Error("failed to schedule next run",
			slog.String("job_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return runErr
}

// execute attempts d up to 1+retry_count times and disables it when every
// attempt fails and a retry policy is set.
func (e *Executor) execute(ctx context.Context, d *job.Definition) error {
	retries, policy := d.Retries()
	total := 1 + retries

	var lastErr error
	for n := 1; n <= total; n++ {
		a := &middleware.Attempt{Job: d, Number: n, Of: total}
		start := time.Now()
		err := e.mw(ctx, a, func(ctx context.Context) error { return e.attempt(ctx, d) })
		if err == nil {
			e.extensions.EmitJobSucceeded(ctx, d, time.Since(start))
			return nil
		}

		lastErr = err
		e.extensions.EmitJobAttemptFailed(ctx, d, n, err)
		if n == total {
			break
		}
		delay := e.retry.Delay(n)
		e.extensions.EmitJobRetrying(ctx, d, n+1, delay)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}

	if !policy {
		return lastErr
	}
	return e.disable(ctx, d, total, lastErr)
}

func (e *Executor) disable(ctx context.Context, d *job.Definition, attempts int, cause error) error {
	if err := e.jobs.SetEnabled(ctx, d.ID, false); err != nil {
		e.logger.Error("failed to disable job after exhausting retries",
			slog.String("job_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	if err := e.queue.CancelPending(ctx, d.ID); err != nil {
		e.logger.Error("failed to drop disabled job from queue",
			slog.String("job_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	err := fmt.Errorf("%w: job %s failed %d attempts: %w", fleetcron.ErrMaxRetriesExceeded, d.Name, attempts, cause)
	e.logger.Error("job disabled after exhausting retries",
		slog.String("job_id", d.ID.String()),
		slog.String("job_name", d.Name),
		slog.Int("attempts", attempts),
		slog.String("error", cause.Error()),
	)
	e.extensions.EmitJobDisabled(ctx, d, err)
	return err
}

// attempt runs the command once. A single host fails on any stage error
// or a non-zero exit; a fleet fails only when every member does.
func (e *Executor) attempt(ctx context.Context, d *job.Definition) error {
	req := sshexec.Request{
		JobID:       d.ID,
		HostID:      d.HostID,
		GroupID:     d.GroupID,
		Command:     d.Command,
		ExecTimeout: d.ExecTimeout(0),
	}

	if d.IsFleet() {
		stream, err := e.runner.RunFleet(ctx, req)
		if err != nil {
			return err
		}
		records := stream.Collect()
		if sshexec.Failed(records) {
			return fmt.Errorf("worker: all %d hosts failed: %w", len(records), recordsErr(records))
		}
		return nil
	}

	res, err := e.runner.Run(ctx, req)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: status %d on %s", fleetcron.ErrNonZeroExit, res.ExitCode, res.Server)
	}
	return nil
}

func recordsErr(records []sshexec.Record) error {
	errs := make([]error, 0, len(records))
	for _, r := range records {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		errs = append(errs, fmt.Errorf("%w: status %d on %s", fleetcron.ErrNonZeroExit, r.ExitCode, r.Server))
	}
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
