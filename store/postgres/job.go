package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

const jobColumns = `
	id, name, description, cron_expression, host_id, group_id, command,
	enabled, timeout_seconds, retry_count, last_executed_at, next_execute_at,
	created_at, updated_at`

// CreateJob persists a new definition.
func (s *Store) CreateJob(ctx context.Context, d *job.Definition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fleetcron_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID.String(), d.Name, d.Description, d.Schedule, d.HostID, d.GroupID, d.Command,
		d.Enabled, d.TimeoutSeconds, d.RetryCount, d.LastExecutedAt, d.NextExecuteAt,
		d.CreatedAt, d.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isDuplicateKey(err):
		return fleetcron.ErrJobAlreadyExists
	case isForeignKeyViolation(err):
		return fmt.Errorf("fleetcron/postgres: create job: %w", fleetcron.ErrInvalidTarget)
	default:
		return fmt.Errorf("fleetcron/postgres: create job: %w", err)
	}
}

// GetJob reads a definition.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Definition, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM fleetcron_jobs WHERE id = $1`, jobID.String())

	d, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fleetcron.ErrJobNotFound
		}
		return nil, fmt.Errorf("fleetcron/postgres: get job: %w", err)
	}
	return d, nil
}

// ListJobs returns definitions ordered by next_execute_at then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Definition, error) {
	var (
		where []string
		args  []any
	)
	if opts.EnabledOnly {
		where = append(where, "enabled")
	}
	if !opts.DueBefore.IsZero() {
		args = append(args, opts.DueBefore)
		where = append(where, fmt.Sprintf("next_execute_at <= $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM fleetcron_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY next_execute_at ASC NULLS LAST, id COLLATE "C" ASC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list jobs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*job.Definition, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list jobs: %w", err)
	}
	return out, nil
}

// UpdateNextExecuteAt records the next fire time.
func (s *Store) UpdateNextExecuteAt(ctx context.Context, jobID id.JobID, next time.Time) error {
	return s.execJob(ctx, "update next execute", `
		UPDATE fleetcron_jobs SET next_execute_at = $2, updated_at = NOW() WHERE id = $1`,
		jobID.String(), next.UTC())
}

// MarkExecuted records the start of an execution.
func (s *Store) MarkExecuted(ctx context.Context, jobID id.JobID, at time.Time) error {
	return s.execJob(ctx, "mark executed", `
		UPDATE fleetcron_jobs SET last_executed_at = $2, updated_at = NOW() WHERE id = $1`,
		jobID.String(), at.UTC())
}

// SetEnabled flips the enabled flag.
func (s *Store) SetEnabled(ctx context.Context, jobID id.JobID, enabled bool) error {
	return s.execJob(ctx, "set enabled", `
		UPDATE fleetcron_jobs SET enabled = $2, updated_at = NOW() WHERE id = $1`,
		jobID.String(), enabled)
}

// DeleteJob removes a definition.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	return s.execJob(ctx, "delete job", `DELETE FROM fleetcron_jobs WHERE id = $1`, jobID.String())
}

func (s *Store) execJob(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("fleetcron/postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fleetcron.ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*job.Definition, error) {
	var (
		d          job.Definition
		retryCount *int32
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.Description, &d.Schedule, &d.HostID, &d.GroupID, &d.Command,
		&d.Enabled, &d.TimeoutSeconds, &retryCount, &d.LastExecutedAt, &d.NextExecuteAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if retryCount != nil {
		n := int(*retryCount)
		d.RetryCount = &n
	}
	return &d, nil
}
