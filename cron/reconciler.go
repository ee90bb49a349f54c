package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
	"github.com/xraph/fleetcron/queue"
)

// Emitter receives reconciliation events. ext.Registry satisfies it.
type Emitter interface {
	EmitScheduleSynced(ctx context.Context, phase string, queued int)
	EmitJobsReclaimed(ctx context.Context, jobIDs []id.JobID)
}

type nopEmitter struct{}

func (nopEmitter) EmitScheduleSynced(context.Context, string, int) {}
func (nopEmitter) EmitJobsReclaimed(context.Context, []id.JobID) {}

// Sync phases reported to the Emitter.
const (
	PhaseInitial  = "initial"
	PhasePeriodic = "periodic"
)

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcileInterval sets the periodic sync period.
func WithReconcileInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.interval = d }
}

// WithSaveWindow sets the enqueue look-ahead horizon.
func WithSaveWindow(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.saveWindow = d }
}

// WithReclaimInterval sets how often expired claims are reclaimed.
func WithReclaimInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.reclaimInterval = d }
}

// WithReclaimGrace sets the delay applied to reclaimed jobs.
func WithReclaimGrace(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.reclaimGrace = d }
}

// WithEmitter sets the event sink.
func WithEmitter(e Emitter) ReconcilerOption {
	return func(r *Reconciler) { r.emitter = e }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler mirrors upcoming runs from the job store into the queue.
type Reconciler struct {
	jobs    job.Store
	queue   queue.Queue
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	interval        time.Duration
	saveWindow      time.Duration
	reclaimInterval time.Duration
	reclaimGrace    time.Duration

	schedules *scheduleCache

	// loopCtx is handed to every tick and canceled by Stop, so a slow
	// store or queue call cannot hold shutdown.
	loopCtx    context.Context
	cancelLoop context.CancelFunc
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewReconciler creates a Reconciler with the default intervals: 100s
// reconcile, 300s save window, 5s reclaim, 5s grace.
func NewReconciler(jobs job.Store, q queue.Queue, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		jobs:            jobs,
		queue:           q,
		emitter:         nopEmitter{},
		logger:          logger,
		now:             time.Now,
		interval:        100 * time.Second,
		saveWindow:      300 * time.Second,
		reclaimInterval: 5 * time.Second,
		reclaimGrace:    5 * time.Second,
		schedules:       newScheduleCache(),
		stopCh:          make(chan struct{}),
	}
	r.loopCtx, r.cancelLoop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// InitialSync recomputes every job's next fire time from now. Enabled jobs
// due within one reconcile interval are enqueued; disabled jobs are removed
// from pending. Per-job failures are logged and skipped.
func (r *Reconciler) InitialSync(ctx context.Context) error {
	defs, err := r.jobs.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		return fmt.Errorf("cron: initial sync: %w", err)
	}

	now := r.now()
	horizon := now.Add(r.interval)
	queued := 0
	for _, d := range defs {
		if !d.Enabled {
			if err := r.queue.CancelPending(ctx, d.ID); err != nil {
				r.logJobError("cancel disabled job", d.ID, err)
			}
			continue
		}

		next, ok := r.nextFire(d, now)
		if !ok {
			continue
		}
		if err := r.jobs.UpdateNextExecuteAt(ctx, d.ID, next); err != nil {
			r.logJobError("persist next execute", d.ID, err)
			continue
		}
		if next.After(horizon) {
			continue
		}
		if err := r.queue.Enqueue(ctx, d.ID, next); err != nil {
			r.logJobError("enqueue", d.ID, err)
			continue
		}
		queued++
	}

	r.logger.Info("initial schedule sync done",
		slog.Int("jobs", len(defs)),
		slog.Int("queued", queued),
	)
	r.emitter.EmitScheduleSynced(ctx, PhaseInitial, queued)
	return nil
}

// PeriodicSync offers every enabled job due within the save window. A
// stored fire time already in the past is recomputed from now first, so
// missed slots are skipped rather than replayed.
func (r *Reconciler) PeriodicSync(ctx context.Context) error {
	now := r.now()
	defs, err := r.jobs.ListJobs(ctx, job.ListOpts{
		EnabledOnly: true,
		DueBefore:   now.Add(r.saveWindow),
	})
	if err != nil {
		return fmt.Errorf("cron: periodic sync: %w", err)
	}

	queued := 0
	for _, d := range defs {
		due := *d.NextExecuteAt
		if due.Before(now) {
			next, ok := r.nextFire(d, now)
			if !ok {
				continue
			}
			if err := r.jobs.UpdateNextExecuteAt(ctx, d.ID, next); err != nil {
				r.logJobError("persist next execute", d.ID, err)
				continue
			}
			due = next
			if due.After(now.Add(r.saveWindow)) {
				continue
			}
		}

		added, err := r.queue.Offer(ctx, d.ID, due)
		if err != nil {
			r.logJobError("offer", d.ID, err)
			continue
		}
		if added {
			queued++
		}
	}

	r.logger.Debug("periodic schedule sync done",
		slog.Int("due", len(defs)),
		slog.Int("queued", queued),
	)
	r.emitter.EmitScheduleSynced(ctx, PhasePeriodic, queued)
	return nil
}

// ReconcileOne reschedules a single job from a fresh read. A job that is
// gone or disabled is removed from pending instead, which keeps a job
// disabled during its own execution out of the queue.
func (r *Reconciler) ReconcileOne(ctx context.Context, jobID id.JobID) error {
	d, err := r.jobs.GetJob(ctx, jobID)
	if errors.Is(err, fleetcron.ErrJobNotFound) {
		return r.queue.CancelPending(ctx, jobID)
	}
	if err != nil {
		return fmt.Errorf("cron: reconcile %s: %w", jobID, err)
	}
	if !d.Enabled {
		return r.queue.CancelPending(ctx, jobID)
	}

	now := r.now()
	next, ok := r.nextFire(d, now)
	if !ok {
		return r.queue.CancelPending(ctx, jobID)
	}
	if err := r.jobs.UpdateNextExecuteAt(ctx, jobID, next); err != nil {
		return fmt.Errorf("cron: reconcile %s: %w", jobID, err)
	}
	if next.After(now.Add(r.saveWindow)) {
		return nil
	}
	if err := r.queue.Enqueue(ctx, jobID, next); err != nil {
		return fmt.Errorf("cron: reconcile %s: %w", jobID, err)
	}

	// A disable that landed between the read above and the enqueue has
	// already run its CancelPending, so undo the enqueue here.
	cur, err := r.jobs.GetJob(ctx, jobID)
	switch {
	case errors.Is(err, fleetcron.ErrJobNotFound):
		return r.queue.CancelPending(ctx, jobID)
	case err != nil:
		return fmt.Errorf("cron: reconcile %s: recheck: %w", jobID, err)
	case !cur.Enabled:
		return r.queue.CancelPending(ctx, jobID)
	}
	return nil
}

// ReclaimTimeouts returns expired claims to pending after the grace delay.
func (r *Reconciler) ReclaimTimeouts(ctx context.Context) ([]id.JobID, error) {
	reclaimed, err := r.queue.ReclaimExpired(ctx, r.now(), r.reclaimGrace)
	if err != nil {
		return nil, fmt.Errorf("cron: reclaim: %w", err)
	}
	if len(reclaimed) > 0 {
		ids := make([]string, len(reclaimed))
		for i, j := range reclaimed {
			ids[i] = j.String()
		}
		r.logger.Warn("reclaimed expired claims", slog.Any("job_ids", ids))
		r.emitter.EmitJobsReclaimed(ctx, reclaimed)
	}
	return reclaimed, nil
}

// NextFireTime parses d's schedule and returns its next fire time after now.
func (r *Reconciler) NextFireTime(d *job.Definition, now time.Time) (time.Time, error) {
	sched, err := r.schedules.get(d.Schedule)
	if err != nil {
		return time.Time{}, err
	}
	next, ok := Next(sched, now)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q never fires", fleetcron.ErrInvalidSchedule, d.Schedule)
	}
	return next, nil
}

func (r *Reconciler) nextFire(d *job.Definition, now time.Time) (time.Time, bool) {
	next, err := r.NextFireTime(d, now)
	if err != nil {
		r.logJobError("compute next fire time", d.ID, err)
		return time.Time{}, false
	}
	return next, true
}

func (r *Reconciler) logJobError(op string, jobID id.JobID, err error) {
	r.logger.Error("reconcile: "+op+" failed",
		slog.String("job_id", jobID.String()),
		slog.String("error", err.Error()),
	)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the periodic sync and reclaim loops. Call InitialSync
// first.
func (r *Reconciler) Start(_ context.Context) error {
	r.wg.Add(2)
	go r.loop(r.interval, func(ctx context.Context) error { return r.PeriodicSync(ctx) })
	go r.loop(r.reclaimInterval, func(ctx context.Context) error {
		_, err := r.ReclaimTimeouts(ctx)
		return err
	})
	r.logger.Info("reconciler started",
		slog.Duration("reconcile_interval", r.interval),
		slog.Duration("save_window", r.saveWindow),
		slog.Duration("reclaim_interval", r.reclaimInterval),
	)
	return nil
}

// Stop signals both loops, cancels any pass in progress and waits for them
// to return.
func (r *Reconciler) Stop(_ context.Context) error {
	close(r.stopCh)
	r.cancelLoop()
	r.wg.Wait()
	r.logger.Info("reconciler stopped")
	return nil
}

func (r *Reconciler) loop(every time.Duration, fn func(context.Context) error) {
	defer r.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := fn(r.loopCtx); err != nil {
				r.logger.Error("reconcile loop error", slog.String("error", err.Error()))
			}
		}
	}
}
