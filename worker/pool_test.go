package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/fleetcron/backoff"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/queue"
	"github.com/xraph/fleetcron/store/memory"
	"github.com/xraph/fleetcron/worker"
)

// countingProcessor records every id it is handed.
type countingProcessor struct {
	mu      sync.Mutex
	seen    map[string]int
	block   chan struct{}
	started chan id.JobID
	active  atomic.Int32
	peak    atomic.Int32
}

func newCountingProcessor() *countingProcessor {
	return &countingProcessor{seen: make(map[string]int), started: make(chan id.JobID, 256)}
}

func (p *countingProcessor) Process(_ context.Context, jobID id.JobID) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	p.seen[jobID.String()]++
	p.mu.Unlock()
	p.started <- jobID

	if p.block != nil {
		<-p.block
	}
	return nil
}

func (p *countingProcessor) counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.seen))
	for k, v := range p.seen {
		out[k] = v
	}
	return out
}

func waitFor(t *testing.T, ch <-chan id.JobID, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for range n {
		select {
		case <-ch:
		case <-timeout:
			t.Fatalf("timed out waiting for %d jobs", n)
		}
	}
}

func stopPool(t *testing.T, p *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	p := worker.NewPool(memory.NewQueue(), newCountingProcessor(), nil, slog.Default(),
		worker.WithPollInterval(10*time.Millisecond))

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}
	stopPool(t, p)
	stopPool(t, p)

	if p.WorkerID().Prefix() != id.PrefixWorker {
		t.Fatalf("worker id prefix = %q", p.WorkerID().Prefix())
	}
}

func TestPool_ProcessesDueJobs(t *testing.T) {
	q := memory.NewQueue()
	proc := newCountingProcessor()
	ctx := context.Background()

	due := id.NewJobID()
	later := id.NewJobID()
	if err := q.Enqueue(ctx, due, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, later, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	p := worker.NewPool(q, proc, nil, slog.Default(), worker.WithPollInterval(10*time.Millisecond))
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, proc.started, 1)
	time.Sleep(50 * time.Millisecond)
	stopPool(t, p)

	counts := proc.counts()
	if counts[due.String()] != 1 {
		t.Fatalf("due job processed %d times, want 1", counts[due.String()])
	}
	if counts[later.String()] != 0 {
		t.Fatal("job due in an hour was processed")
	}
}

func TestPool_ExclusiveAcrossPools(t *testing.T) {
	q := memory.NewQueue()
	proc := newCountingProcessor()
	ctx := context.Background()

	const jobs = 60
	now := time.Now()
	for range jobs {
		if err := q.Enqueue(ctx, id.NewJobID(), now); err != nil {
			t.Fatal(err)
		}
	}

	var pools []*worker.Pool
	for range 3 {
		p := worker.NewPool(q, proc, nil, slog.Default(),
			worker.WithPoolConcurrency(2),
			worker.WithPollInterval(5*time.Millisecond),
		)
		if err := p.Start(ctx); err != nil {
			t.Fatal(err)
		}
		pools = append(pools, p)
	}
	waitFor(t, proc.started, jobs)
	time.Sleep(50 * time.Millisecond)
	for _, p := range pools {
		stopPool(t, p)
	}

	counts := proc.counts()
	if len(counts) != jobs {
		t.Fatalf("processed %d distinct jobs, want %d", len(counts), jobs)
	}
	for jobID, n := range counts {
		if n != 1 {
			t.Errorf("job %s processed %d times", jobID, n)
		}
	}
}

func TestPool_GateCapsInFlight(t *testing.T) {
	q := memory.NewQueue()
	proc := newCountingProcessor()
	proc.block = make(chan struct{})
	ctx := context.Background()

	for range 3 {
		if err := q.Enqueue(ctx, id.NewJobID(), time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	p := worker.NewPool(q, proc, nil, slog.Default(),
		worker.WithPollInterval(5*time.Millisecond),
		worker.WithGate(queue.NewGate(queue.GateConfig{MaxInFlight: 1})),
	)
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, proc.started, 1)
	time.Sleep(50 * time.Millisecond)
	if got := p.InFlight(); got != 1 {
		t.Fatalf("in flight = %d, want 1", got)
	}

	close(proc.block)
	waitFor(t, proc.started, 2)
	stopPool(t, p)

	if peak := proc.peak.Load(); peak != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak)
	}
}

// flakyQueue fails the first few claims.
type flakyQueue struct {
	*memory.Queue
	failures atomic.Int32
	claims   atomic.Int32
}

func (f *flakyQueue) Claim(ctx context.Context, now time.Time, timeout time.Duration) (id.JobID, bool, error) {
	f.claims.Add(1)
	if f.failures.Add(-1) >= 0 {
		return id.Nil, false, errors.New("connection reset")
	}
	return f.Queue.Claim(ctx, now, timeout)
}

func TestPool_SurvivesClaimErrors(t *testing.T) {
	q := &flakyQueue{Queue: memory.NewQueue()}
	q.failures.Store(3)
	proc := newCountingProcessor()
	ctx := context.Background()

	if err := q.Enqueue(ctx, id.NewJobID(), time.Now()); err != nil {
		t.Fatal(err)
	}

	p := worker.NewPool(q, proc, nil, slog.Default(),
		worker.WithPollInterval(5*time.Millisecond),
		worker.WithErrorBackoff(backoff.NewConstant(5*time.Millisecond)),
	)
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, proc.started, 1)
	stopPool(t, p)

	if got := q.claims.Load(); got < 4 {
		t.Fatalf("expected the loop to keep claiming after errors, got %d claims", got)
	}
}

func TestPool_StopWaitsForInFlight(t *testing.T) {
	q := memory.NewQueue()
	proc := newCountingProcessor()
	proc.block = make(chan struct{})
	ctx := context.Background()

	if err := q.Enqueue(ctx, id.NewJobID(), time.Now()); err != nil {
		t.Fatal(err)
	}
	p := worker.NewPool(q, proc, nil, slog.Default(), worker.WithPollInterval(5*time.Millisecond))
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, proc.started, 1)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Stop(stopCtx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(proc.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the job finished")
	}
}
