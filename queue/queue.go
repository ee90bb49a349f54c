package queue

import (
	"context"
	"time"

	"github.com/xraph/fleetcron/id"
)

// Set names the two sorted sets every backend keeps.
const (
	SetPending    = "pending"
	SetProcessing = "processing"
)

// Entry is one member of a set with its score: the due time for pending,
// the claim deadline for processing.
type Entry struct {
	JobID id.JobID
	Score time.Time
}

// Queue is the near-term cache of due and in-flight job runs.
//
// A job id is in at most one of pending and processing. Claim is a single
// atomic operation on the backend, so concurrent claimers in any number of
// processes never receive the same id for the same run.
type Queue interface {
	// Enqueue inserts or moves jobID in pending with score dueAt. It is a
	// no-op while jobID is processing.
	Enqueue(ctx context.Context, jobID id.JobID, dueAt time.Time) error

	// Offer inserts jobID into pending only when it is in neither set and
	// reports whether it did.
	Offer(ctx context.Context, jobID id.JobID, dueAt time.Time) (bool, error)

	// Claim moves the pending entry with the smallest score at or before
	// now (ties by smallest id) into processing with deadline now+timeout.
	// ok is false when nothing is due.
	Claim(ctx context.Context, now time.Time, timeout time.Duration) (jobID id.JobID, ok bool, err error)

	// Ack removes jobID from processing.
	Ack(ctx context.Context, jobID id.JobID) error

	// CancelPending removes jobID from pending.
	CancelPending(ctx context.Context, jobID id.JobID) error

	// Requeue moves jobID from processing back to pending at dueAt.
	Requeue(ctx context.Context, jobID id.JobID, dueAt time.Time) error

	// ReclaimExpired moves every processing entry with deadline at or
	// before now back to pending at now+grace and returns their ids.
	ReclaimExpired(ctx context.Context, now time.Time, grace time.Duration) ([]id.JobID, error)

	// Purge empties both sets.
	Purge(ctx context.Context) error

	// Entries lists a set (SetPending or SetProcessing) by ascending score.
	Entries(ctx context.Context, set string) ([]Entry, error)
}

// Millis converts t to the integer millisecond score used by backends.
func Millis(t time.Time) int64 { return t.UnixMilli() }
