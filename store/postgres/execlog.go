package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fleetcron/execlog"
	"github.com/xraph/fleetcron/id"
)

// AppendExecutionLog appends an entry.
func (s *Store) AppendExecutionLog(ctx context.Context, e *execlog.Entry) error {
	if e.ID.IsNil() {
		e.ID = id.NewLogID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fleetcron_execution_logs
			(id, job_id, host_id, server, status, exit_code, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID.String(), e.JobID, e.HostID, e.Server, string(e.Status), e.ExitCode, e.Output, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("fleetcron/postgres: append execution log: %w", err)
	}
	return nil
}

// ListExecutionLogs returns entries newest first.
func (s *Store) ListExecutionLogs(ctx context.Context, opts execlog.ListOpts) ([]*execlog.Entry, error) {
	query := `
		SELECT id, job_id, host_id, server, status, exit_code, output, created_at
		FROM fleetcron_execution_logs`
	var args []any
	if !opts.JobID.IsNil() {
		args = append(args, opts.JobID.String())
		query += ` WHERE job_id = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list execution logs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*execlog.Entry, error) {
		var (
			e        execlog.Entry
			status   string
			exitCode int32
		)
		err := row.Scan(&e.ID, &e.JobID, &e.HostID, &e.Server, &status, &exitCode, &e.Output, &e.CreatedAt)
		e.Status = execlog.Status(status)
		e.ExitCode = int(exitCode)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list execution logs: %w", err)
	}
	return out, nil
}
