// Package execlog records the terminal outcome of every remote execution.
//
// Entries are append-only and written best-effort: a failed write is
// logged and never changes the outcome reported to the caller.
package execlog

import (
	"context"
	"time"

	"github.com/xraph/fleetcron/id"
)

// Status classifies an execution outcome.
type Status string

const (
	// StatusSucceeded means the command ran and exited zero.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the command ran and exited non-zero.
	StatusFailed Status = "failed"
	// StatusError means a stage failed before an exit status was known.
	StatusError Status = "error"
)

// Entry is one execution outcome on one host.
type Entry struct {
	ID id.LogID `json:"id"`
	// JobID is Nil for ad-hoc executions.
	JobID     id.JobID  `json:"job_id,omitzero"`
	HostID    id.HostID `json:"host_id,omitzero"`
	Server    string    `json:"server"`
	Status    Status    `json:"status"`
	ExitCode  int       `json:"exit_code"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOpts controls log listing.
type ListOpts struct {
	// JobID filters by job. Nil lists every entry.
	JobID id.JobID
	// Limit is the maximum number of entries. Zero means no limit.
	Limit int
}

// Store defines the persistence contract for execution logs.
type Store interface {
	AppendExecutionLog(ctx context.Context, e *Entry) error

	// ListExecutionLogs returns entries newest first.
	ListExecutionLogs(ctx context.Context, opts ListOpts) ([]*Entry, error)
}
