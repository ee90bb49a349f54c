package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/queue"
)

var _ queue.Queue = (*Queue)(nil)

// Queue is an in-memory queue.Queue. Claims are serialized by a mutex,
// which gives the same exclusivity as the server-side script of the Redis
// backend within one process.
type Queue struct {
	mu         sync.Mutex
	pending    map[string]int64
	processing map[string]int64
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		pending:    make(map[string]int64),
		processing: make(map[string]int64),
	}
}

// Enqueue upserts into pending unless the job is processing.
func (q *Queue) Enqueue(_ context.Context, jobID id.JobID, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobID.String()
	if _, busy := q.processing[key]; busy {
		return nil
	}
	q.pending[key] = queue.Millis(dueAt)
	return nil
}

// Offer inserts into pending only when the job is in neither set.
func (q *Queue) Offer(_ context.Context, jobID id.JobID, dueAt time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobID.String()
	if _, ok := q.pending[key]; ok {
		return false, nil
	}
	if _, ok := q.processing[key]; ok {
		return false, nil
	}
	q.pending[key] = queue.Millis(dueAt)
	return true, nil
}

// Claim moves the earliest due pending entry into processing.
func (q *Queue) Claim(_ context.Context, now time.Time, timeout time.Duration) (id.JobID, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	nowMs := queue.Millis(now)
	best, bestScore := "", int64(0)
	for key, score := range q.pending {
		if score > nowMs {
			continue
		}
		if best == "" || score < bestScore || (score == bestScore && key < best) {
			best, bestScore = key, score
		}
	}
	if best == "" {
		return id.Nil, false, nil
	}

	jobID, err := id.Parse(best)
	if err != nil {
		return id.Nil, false, fmt.Errorf("fleetcron/memory: claim: %w", err)
	}
	delete(q.pending, best)
	q.processing[best] = nowMs + timeout.Milliseconds()
	return jobID, true, nil
}

// Ack removes the job from processing.
func (q *Queue) Ack(_ context.Context, jobID id.JobID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, jobID.String())
	return nil
}

// CancelPending removes the job from pending.
func (q *Queue) CancelPending(_ context.Context, jobID id.JobID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, jobID.String())
	return nil
}

// Requeue moves the job from processing to pending.
func (q *Queue) Requeue(_ context.Context, jobID id.JobID, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobID.String()
	delete(q.processing, key)
	q.pending[key] = queue.Millis(dueAt)
	return nil
}

// ReclaimExpired returns expired claims to pending at now+grace.
func (q *Queue) ReclaimExpired(_ context.Context, now time.Time, grace time.Duration) ([]id.JobID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	nowMs := queue.Millis(now)
	var keys []string
	for key, deadline := range q.processing {
		if deadline <= nowMs {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	out := make([]id.JobID, 0, len(keys))
	for _, key := range keys {
		jobID, err := id.Parse(key)
		if err != nil {
			return out, fmt.Errorf("fleetcron/memory: reclaim: %w", err)
		}
		delete(q.processing, key)
		q.pending[key] = nowMs + grace.Milliseconds()
		out = append(out, jobID)
	}
	return out, nil
}

// Purge empties both sets.
func (q *Queue) Purge(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.pending)
	clear(q.processing)
	return nil
}

// Entries lists a set by ascending score, then id.
func (q *Queue) Entries(_ context.Context, set string) ([]queue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var src map[string]int64
	switch set {
	case queue.SetPending:
		src = q.pending
	case queue.SetProcessing:
		src = q.processing
	default:
		return nil, fmt.Errorf("fleetcron/memory: unknown set %q", set)
	}

	out := make([]queue.Entry, 0, len(src))
	for key, score := range src {
		jobID, err := id.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("fleetcron/memory: entries: %w", err)
		}
		out = append(out, queue.Entry{JobID: jobID, Score: time.UnixMilli(score)})
	}
	slices.SortFunc(out, func(a, b queue.Entry) int {
		if c := a.Score.Compare(b.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.JobID.String(), b.JobID.String())
	})
	return out, nil
}
