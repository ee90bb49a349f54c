// Package queuetest is the behavioural suite shared by every queue.Queue
// backend.
package queuetest

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/queue"
)

// Factory returns an empty queue for one subtest.
type Factory func(t *testing.T) queue.Queue

// Run executes the suite against the backend built by newQueue.
func Run(t *testing.T, newQueue Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, q queue.Queue)
	}{
		{"EnqueueIsIdempotentUpsert", testEnqueueUpsert},
		{"ClaimNothingDue", testClaimNothingDue},
		{"ClaimOrder", testClaimOrder},
		{"ClaimMovesToProcessing", testClaimMovesToProcessing},
		{"ClaimIsExclusive", testClaimExclusive},
		{"AckAndCancel", testAckAndCancel},
		{"EnqueueSkipsProcessing", testEnqueueSkipsProcessing},
		{"OfferOnlyWhenAbsent", testOffer},
		{"Requeue", testRequeue},
		{"ReclaimExpired", testReclaimExpired},
		{"Purge", testPurge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newQueue(t))
		})
	}
}

// ── Helpers ──────────────────────────────────────────

func baseTime() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func entries(t *testing.T, q queue.Queue, set string) []queue.Entry {
	t.Helper()
	got, err := q.Entries(context.Background(), set)
	must(t, err)
	return got
}

func ids(es []queue.Entry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.JobID.String())
	}
	return out
}

// single asserts set holds exactly jobID and returns its score.
func single(t *testing.T, q queue.Queue, set string, jobID id.JobID) time.Time {
	t.Helper()
	es := entries(t, q, set)
	if len(es) != 1 {
		t.Fatalf("%s: expected 1 entry, got %v", set, ids(es))
	}
	if es[0].JobID.String() != jobID.String() {
		t.Fatalf("%s: expected %s, got %s", set, jobID, es[0].JobID)
	}
	return es[0].Score
}

func empty(t *testing.T, q queue.Queue, set string) {
	t.Helper()
	if es := entries(t, q, set); len(es) != 0 {
		t.Errorf("%s: expected empty, got %v", set, ids(es))
	}
}

func sameMillis(t *testing.T, want, got time.Time) {
	t.Helper()
	if want.UnixMilli() != got.UnixMilli() {
		t.Errorf("score: want %d, got %d", want.UnixMilli(), got.UnixMilli())
	}
}

func claim(t *testing.T, q queue.Queue, now time.Time, timeout time.Duration) (id.JobID, bool) {
	t.Helper()
	j, ok, err := q.Claim(context.Background(), now, timeout)
	must(t, err)
	return j, ok
}

func mustClaim(t *testing.T, q queue.Queue, now time.Time, timeout time.Duration) id.JobID {
	t.Helper()
	j, ok := claim(t, q, now, timeout)
	if !ok {
		t.Fatal("expected a due job to be claimed")
	}
	return j
}

// ── Cases ────────────────────────────────────────────

func testEnqueueUpsert(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	j := id.NewJobID()

	must(t, q.Enqueue(ctx, j, now.Add(time.Minute)))
	must(t, q.Enqueue(ctx, j, now.Add(2*time.Minute)))

	sameMillis(t, now.Add(2*time.Minute), single(t, q, queue.SetPending, j))
}

func testClaimNothingDue(t *testing.T, q queue.Queue) {
	now := baseTime()

	if _, ok := claim(t, q, now, 10*time.Second); ok {
		t.Error("empty queue: nothing should be claimed")
	}

	must(t, q.Enqueue(context.Background(), id.NewJobID(), now.Add(time.Second)))
	if _, ok := claim(t, q, now, 10*time.Second); ok {
		t.Error("future entry must not be claimed")
	}
}

func testClaimOrder(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	early, tieA, tieB := id.NewJobID(), id.NewJobID(), id.NewJobID()
	if tieB.String() < tieA.String() {
		tieA, tieB = tieB, tieA
	}

	must(t, q.Enqueue(ctx, tieB, now.Add(-time.Second)))
	must(t, q.Enqueue(ctx, tieA, now.Add(-time.Second)))
	must(t, q.Enqueue(ctx, early, now.Add(-time.Minute)))

	var got []string
	for range 3 {
		got = append(got, mustClaim(t, q, now, 10*time.Second).String())
	}
	want := []string{early.String(), tieA.String(), tieB.String()}
	if !slices.Equal(want, got) {
		t.Errorf("claim order: want %v, got %v", want, got)
	}
}

func testClaimMovesToProcessing(t *testing.T, q queue.Queue) {
	now := baseTime()
	j := id.NewJobID()
	must(t, q.Enqueue(context.Background(), j, now))

	if got := mustClaim(t, q, now, 10*time.Second); got.String() != j.String() {
		t.Errorf("claimed %s, want %s", got, j)
	}

	empty(t, q, queue.SetPending)
	sameMillis(t, now.Add(10*time.Second), single(t, q, queue.SetProcessing, j))
}

func testClaimExclusive(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	must(t, q.Enqueue(ctx, id.NewJobID(), now.Add(-time.Millisecond)))

	const claimers = 16
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := q.Claim(ctx, now, 10*time.Second)
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Errorf("expected exactly 1 winning claim, got %d", won)
	}
}

func testAckAndCancel(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	claimed, pending := id.NewJobID(), id.NewJobID()
	must(t, q.Enqueue(ctx, claimed, now.Add(-time.Second)))
	must(t, q.Enqueue(ctx, pending, now.Add(time.Hour)))
	mustClaim(t, q, now, 10*time.Second)

	must(t, q.Ack(ctx, claimed))
	must(t, q.CancelPending(ctx, pending))
	empty(t, q, queue.SetPending)
	empty(t, q, queue.SetProcessing)

	// Unknown ids are no-ops.
	must(t, q.Ack(ctx, id.NewJobID()))
	must(t, q.CancelPending(ctx, id.NewJobID()))
}

func testEnqueueSkipsProcessing(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	j := id.NewJobID()
	must(t, q.Enqueue(ctx, j, now))
	mustClaim(t, q, now, 10*time.Second)

	must(t, q.Enqueue(ctx, j, now.Add(time.Minute)))
	empty(t, q, queue.SetPending)
	single(t, q, queue.SetProcessing, j)
}

func testOffer(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	j := id.NewJobID()

	added, err := q.Offer(ctx, j, now.Add(time.Minute))
	must(t, err)
	if !added {
		t.Error("first offer should add")
	}

	added, err = q.Offer(ctx, j, now.Add(time.Hour))
	must(t, err)
	if added {
		t.Error("second offer must not add")
	}

	sameMillis(t, now.Add(time.Minute), single(t, q, queue.SetPending, j))
}

func testRequeue(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	j := id.NewJobID()
	must(t, q.Enqueue(ctx, j, now))
	mustClaim(t, q, now, 10*time.Second)

	must(t, q.Requeue(ctx, j, now.Add(time.Second)))
	empty(t, q, queue.SetProcessing)
	sameMillis(t, now.Add(time.Second), single(t, q, queue.SetPending, j))
}

func testReclaimExpired(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	expired, live := id.NewJobID(), id.NewJobID()
	must(t, q.Enqueue(ctx, expired, now))
	mustClaim(t, q, now, 10*time.Millisecond)
	must(t, q.Enqueue(ctx, live, now))
	mustClaim(t, q, now, time.Hour)

	later := now.Add(time.Second)
	got, err := q.ReclaimExpired(ctx, later, 5*time.Second)
	must(t, err)
	if len(got) != 1 || got[0].String() != expired.String() {
		t.Fatalf("reclaimed: want [%s], got %v", expired, got)
	}

	sameMillis(t, later.Add(5*time.Second), single(t, q, queue.SetPending, expired))
	single(t, q, queue.SetProcessing, live)

	// A reclaimed job becomes claimable again once the grace has passed.
	if _, ok := claim(t, q, later, time.Second); ok {
		t.Error("reclaimed job claimed before its grace elapsed")
	}
	if j := mustClaim(t, q, later.Add(5*time.Second), time.Second); j.String() != expired.String() {
		t.Errorf("claimed %s, want %s", j, expired)
	}
}

func testPurge(t *testing.T, q queue.Queue) {
	ctx := context.Background()
	now := baseTime()
	must(t, q.Enqueue(ctx, id.NewJobID(), now))
	must(t, q.Enqueue(ctx, id.NewJobID(), now))
	mustClaim(t, q, now, time.Second)

	must(t, q.Purge(ctx))
	empty(t, q, queue.SetPending)
	empty(t, q, queue.SetProcessing)
}
