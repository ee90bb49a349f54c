package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/queue"
)

var _ queue.Queue = (*Queue)(nil)

// Queue implements queue.Queue on the fleetcron_queue table. Use it when
// no Redis is available; the schema comes from Store.Migrate.
type Queue struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewQueue returns a queue sharing the store's pool.
func NewQueue(pool *pgxpool.Pool, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{pool: pool, logger: logger}
}

// Enqueue upserts into pending unless the job is processing.
func (q *Queue) Enqueue(ctx context.Context, jobID id.JobID, dueAt time.Time) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO fleetcron_queue (job_id, state, score_ms) VALUES ($1, 'pending', $2)
		ON CONFLICT (job_id) DO UPDATE SET score_ms = EXCLUDED.score_ms
		WHERE fleetcron_queue.state = 'pending'`,
		jobID.String(), queue.Millis(dueAt))
	if err != nil {
		return fmt.Errorf("fleetcron/postgres: enqueue: %w", err)
	}
	return nil
}

// Offer inserts into pending only when the job is in neither set.
func (q *Queue) Offer(ctx context.Context, jobID id.JobID, dueAt time.Time) (bool, error) {
	tag, err := q.pool.Exec(ctx, `
		INSERT INTO fleetcron_queue (job_id, state, score_ms) VALUES ($1, 'pending', $2)
		ON CONFLICT (job_id) DO NOTHING`,
		jobID.String(), queue.Millis(dueAt))
	if err != nil {
		return false, fmt.Errorf("fleetcron/postgres: offer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Claim moves the earliest due pending row into processing. SKIP LOCKED
// lets concurrent claimers pass over a row another claimer holds.
func (q *Queue) Claim(ctx context.Context, now time.Time, timeout time.Duration) (id.JobID, bool, error) {
	var member string
	err := q.pool.QueryRow(ctx, `
		UPDATE fleetcron_queue
		SET state = 'processing', score_ms = $1 + $2
		WHERE job_id = (
			SELECT job_id FROM fleetcron_queue
			WHERE state = 'pending' AND score_ms <= $1
			ORDER BY score_ms ASC, job_id COLLATE "C" ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id`,
		queue.Millis(now), timeout.Milliseconds(),
	).Scan(&member)
	if isNoRows(err) {
		return id.Nil, false, nil
	}
	if err != nil {
		return id.Nil, false, fmt.Errorf("fleetcron/postgres: claim: %w", err)
	}

	jobID, err := id.Parse(member)
	if err != nil {
		q.logger.Warn("dropping malformed queue member", slog.String("member", member))
		_, _ = q.pool.Exec(ctx, `DELETE FROM fleetcron_queue WHERE job_id = $1`, member)
		return id.Nil, false, nil
	}
	return jobID, true, nil
}

// Ack removes the job from processing.
func (q *Queue) Ack(ctx context.Context, jobID id.JobID) error {
	return q.remove(ctx, "ack", queue.SetProcessing, jobID)
}

// CancelPending removes the job from pending.
func (q *Queue) CancelPending(ctx context.Context, jobID id.JobID) error {
	return q.remove(ctx, "cancel pending", queue.SetPending, jobID)
}

func (q *Queue) remove(ctx context.Context, op, state string, jobID id.JobID) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM fleetcron_queue WHERE job_id = $1 AND state = $2`,
		jobID.String(), state)
	if err != nil {
		return fmt.Errorf("fleetcron/postgres: %s: %w", op, err)
	}
	return nil
}

// Requeue moves the job from processing to pending.
func (q *Queue) Requeue(ctx context.Context, jobID id.JobID, dueAt time.Time) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO fleetcron_queue (job_id, state, score_ms) VALUES ($1, 'pending', $2)
		ON CONFLICT (job_id) DO UPDATE SET state = 'pending', score_ms = EXCLUDED.score_ms`,
		jobID.String(), queue.Millis(dueAt))
	if err != nil {
		return fmt.Errorf("fleetcron/postgres: requeue: %w", err)
	}
	return nil
}

// ReclaimExpired returns expired claims to pending at now+grace.
func (q *Queue) ReclaimExpired(ctx context.Context, now time.Time, grace time.Duration) ([]id.JobID, error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE fleetcron_queue
		SET state = 'pending', score_ms = $1 + $2
		WHERE state = 'processing' AND score_ms <= $1
		RETURNING job_id`,
		queue.Millis(now), grace.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: reclaim: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: reclaim: %w", err)
	}

	out := make([]id.JobID, 0, len(members))
	for _, m := range members {
		jobID, err := id.Parse(m)
		if err != nil {
			q.logger.Warn("reclaimed malformed queue member", slog.String("member", m))
			continue
		}
		out = append(out, jobID)
	}
	return out, nil
}

// Purge empties the queue table.
func (q *Queue) Purge(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM fleetcron_queue`); err != nil {
		return fmt.Errorf("fleetcron/postgres: purge: %w", err)
	}
	return nil
}

// Entries lists a set by ascending score, then id.
func (q *Queue) Entries(ctx context.Context, set string) ([]queue.Entry, error) {
	if set != queue.SetPending && set != queue.SetProcessing {
		return nil, fmt.Errorf("fleetcron/postgres: unknown set %q", set)
	}
	rows, err := q.pool.Query(ctx, `
		SELECT job_id, score_ms FROM fleetcron_queue
		WHERE state = $1
		ORDER BY score_ms ASC, job_id COLLATE "C" ASC`, set)
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: entries: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (queue.Entry, error) {
		var (
			e     queue.Entry
			score int64
		)
		if err := row.Scan(&e.JobID, &score); err != nil {
			return e, err
		}
		e.Score = time.UnixMilli(score)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: entries: %w", err)
	}
	return out, nil
}
