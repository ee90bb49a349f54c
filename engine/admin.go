package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

// CreateJob validates d, persists it and schedules its first run. A job
// naming both a host and a group has both targets checked; the schedule
// must fire at least once from now.
func (eng *Engine) CreateJob(ctx context.Context, d *job.Definition) error {
	if err := job.Validate(ctx, d, eng.store); err != nil {
		return err
	}
	next, err := eng.reconciler.NextFireTime(d, time.Now())
	if err != nil {
		return err
	}
	d.NextExecuteAt = &next

	if err := eng.store.CreateJob(ctx, d); err != nil {
		return err
	}
	eng.logger.Info("job created",
		slog.String("job_id", d.ID.String()),
		slog.String("name", d.Name),
		slog.String("schedule", d.Schedule),
		slog.Time("next_execute_at", next),
	)
	return eng.reconciler.ReconcileOne(ctx, d.ID)
}

// SetJobEnabled flips a job's enabled flag and reconciles its queue entry:
// a disabled job leaves pending, an enabled one is scheduled from now.
func (eng *Engine) SetJobEnabled(ctx context.Context, jobID id.JobID, enabled bool) error {
	if err := eng.store.SetEnabled(ctx, jobID, enabled); err != nil {
		return err
	}
	eng.logger.Info("job enabled flag set",
		slog.String("job_id", jobID.String()),
		slog.Bool("enabled", enabled),
	)
	return eng.reconciler.ReconcileOne(ctx, jobID)
}

// DeleteJob removes a job and its pending entry. A run already claimed
// finishes and is then dropped by the executor.
func (eng *Engine) DeleteJob(ctx context.Context, jobID id.JobID) error {
	if err := eng.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	return eng.queue.CancelPending(ctx, jobID)
}

// RegisterHost seals password and persists h. An empty password is sealed
// too, so every stored host decrypts.
func (eng *Engine) RegisterHost(ctx context.Context, h *host.Host, password string) error {
	if !h.GroupID.IsNil() {
		if _, err := eng.store.GetGroup(ctx, h.GroupID); err != nil {
			return fmt.Errorf("host: group %s: %w", h.GroupID, err)
		}
	}
	sealed, err := eng.cipher.Encrypt(password)
	if err != nil {
		return err
	}
	h.EncryptedPassword = sealed
	return eng.store.CreateHost(ctx, h)
}
