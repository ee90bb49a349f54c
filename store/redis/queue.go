package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/queue"
)

var _ queue.Queue = (*Queue)(nil)

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithKeyPrefix replaces DefaultKeyPrefix. Processes sharing a queue must
// agree on the prefix.
func WithKeyPrefix(prefix string) Option {
	return func(q *Queue) { q.prefix = prefix }
}

// Queue implements queue.Queue backed by Redis.
type Queue struct {
	client goredis.Cmdable
	logger *slog.Logger
	prefix string
}

// New creates a Redis-backed queue. The caller owns the client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Queue {
	q := &Queue{client: client, logger: slog.Default(), prefix: DefaultKeyPrefix}
	for _, o := range opts {
		o(q)
	}
	return q
}

// NewFromURL parses a redis:// URL and returns the queue with its client.
// The caller must close the client.
func NewFromURL(url string, opts ...Option) (*Queue, *goredis.Client, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("fleetcron/redis: parse url: %w", err)
	}
	client := goredis.NewClient(o)
	return New(client, opts...), client, nil
}

// Client returns the underlying Redis client.
func (q *Queue) Client() goredis.Cmdable { return q.client }

// Ping verifies the Redis connection is alive.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue upserts into pending unless the job is processing.
func (q *Queue) Enqueue(ctx context.Context, jobID id.JobID, dueAt time.Time) error {
	err := enqueueScript.Run(ctx, q.client, q.keys(), queue.Millis(dueAt), jobID.String()).Err()
	if err != nil {
		return fmt.Errorf("fleetcron/redis: enqueue: %w", err)
	}
	return nil
}

// Offer inserts into pending only when the job is in neither set.
func (q *Queue) Offer(ctx context.Context, jobID id.JobID, dueAt time.Time) (bool, error) {
	n, err := offerScript.Run(ctx, q.client, q.keys(), queue.Millis(dueAt), jobID.String()).Int()
	if err != nil {
		return false, fmt.Errorf("fleetcron/redis: offer: %w", err)
	}
	return n == 1, nil
}

// Claim atomically moves the earliest due entry into processing.
func (q *Queue) Claim(ctx context.Context, now time.Time, timeout time.Duration) (id.JobID, bool, error) {
	member, err := claimScript.Run(ctx, q.client, q.keys(), queue.Millis(now), timeout.Milliseconds()).Text()
	if errors.Is(err, goredis.Nil) {
		return id.Nil, false, nil
	}
	if err != nil {
		return id.Nil, false, fmt.Errorf("fleetcron/redis: claim: %w", err)
	}

	jobID, err := id.Parse(member)
	if err != nil {
		// A foreign member would block the head of the set forever.
		q.logger.Warn("dropping malformed queue member",
			slog.String("member", member),
			slog.String("error", err.Error()),
		)
		_ = q.client.ZRem(ctx, q.processingKey(), member).Err()
		return id.Nil, false, nil
	}
	return jobID, true, nil
}

// Ack removes the job from processing.
func (q *Queue) Ack(ctx context.Context, jobID id.JobID) error {
	if err := q.client.ZRem(ctx, q.processingKey(), jobID.String()).Err(); err != nil {
		return fmt.Errorf("fleetcron/redis: ack: %w", err)
	}
	return nil
}

// CancelPending removes the job from pending.
func (q *Queue) CancelPending(ctx context.Context, jobID id.JobID) error {
	if err := q.client.ZRem(ctx, q.pendingKey(), jobID.String()).Err(); err != nil {
		return fmt.Errorf("fleetcron/redis: cancel pending: %w", err)
	}
	return nil
}

// Requeue moves the job from processing to pending in one transaction.
func (q *Queue) Requeue(ctx context.Context, jobID id.JobID, dueAt time.Time) error {
	member := jobID.String()
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(), member)
	pipe.ZAdd(ctx, q.pendingKey(), goredis.Z{Score: float64(queue.Millis(dueAt)), Member: member})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fleetcron/redis: requeue: %w", err)
	}
	return nil
}

// ReclaimExpired returns expired claims to pending at now+grace.
func (q *Queue) ReclaimExpired(ctx context.Context, now time.Time, grace time.Duration) ([]id.JobID, error) {
	members, err := reclaimScript.Run(ctx, q.client, q.keys(), queue.Millis(now), grace.Milliseconds()).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("fleetcron/redis: reclaim: %w", err)
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

// Purge deletes both sets.
func (q *Queue) Purge(ctx context.Context) error {
	if err := q.client.Del(ctx, q.pendingKey(), q.processingKey()).Err(); err != nil {
		return fmt.Errorf("fleetcron/redis: purge: %w", err)
	}
	return nil
}

// Entries lists a set by ascending score.
func (q *Queue) Entries(ctx context.Context, set string) ([]queue.Entry, error) {
	var key string
	switch set {
	case queue.SetPending:
		key = q.pendingKey()
	case queue.SetProcessing:
		key = q.processingKey()
	default:
		return nil, fmt.Errorf("fleetcron/redis: unknown set %q", set)
	}

	zs, err := q.client.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fleetcron/redis: entries: %w", err)
	}
	out := make([]queue.Entry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		jobID, err := id.Parse(member)
		if err != nil {
			continue
		}
		out = append(out, queue.Entry{JobID: jobID, Score: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}
