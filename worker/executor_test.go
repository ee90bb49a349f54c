package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/backoff"
	"github.com/xraph/fleetcron/cron"
	"github.com/xraph/fleetcron/ext"
	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
	"github.com/xraph/fleetcron/middleware"
	"github.com/xraph/fleetcron/queue"
	"github.com/xraph/fleetcron/secret"
	"github.com/xraph/fleetcron/sshexec"
	"github.com/xraph/fleetcron/sshexec/sshtest"
	"github.com/xraph/fleetcron/store/memory"
	"github.com/xraph/fleetcron/worker"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// scriptedRunner answers every single-host run with the same outcome.
type scriptedRunner struct {
	mu    sync.Mutex
	calls []time.Time
	exit  int
	err   error
	onRun func()
}

func (r *scriptedRunner) Run(_ context.Context, _ sshexec.Request) (*sshexec.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, time.Now())
	hook := r.onRun
	r.mu.Unlock()

	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &sshexec.Result{Server: "10.0.0.1", ExitCode: r.exit}, nil
}

func (r *scriptedRunner) RunFleet(context.Context, sshexec.Request) (*sshexec.Stream, error) {
	return nil, errors.New("scriptedRunner: fleet runs not supported")
}

func (r *scriptedRunner) callTimes() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.calls...)
}

// hookCounter counts retry-related lifecycle events.
type hookCounter struct {
	mu        sync.Mutex
	failed    int
	retrying  int
	disabled  int
	succeeded int
}

func (h *hookCounter) Name() string { return "counter" }

func (h *hookCounter) OnJobAttemptFailed(context.Context, *job.Definition, int, error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed++
	return nil
}

func (h *hookCounter) OnJobRetrying(context.Context, *job.Definition, int, time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retrying++
	return nil
}

func (h *hookCounter) OnJobDisabled(context.Context, *job.Definition, error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disabled++
	return nil
}

func (h *hookCounter) OnJobSucceeded(context.Context, *job.Definition, time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.succeeded++
	return nil
}

type harness struct {
	store  *memory.Store
	queue  *memory.Queue
	rec    *cron.Reconciler
	hooks  *hookCounter
	runner worker.Runner
}

func newHarness(t *testing.T, runner worker.Runner) *harness {
	t.Helper()
	s := memory.New()
	q := memory.NewQueue()
	h := &harness{
		store:  s,
		queue:  q,
		rec:    cron.NewReconciler(s, q, slog.Default()),
		hooks:  &hookCounter{},
		runner: runner,
	}
	return h
}

func (h *harness) executor(opts ...worker.ExecutorOption) *worker.Executor {
	extensions := ext.NewRegistry(slog.Default())
	extensions.Register(h.hooks)
	return worker.NewExecutor(h.store, h.queue, h.runner, h.rec, extensions, slog.Default(), opts...)
}

// claim creates d, enqueues it due now and claims it.
func (h *harness) claim(t *testing.T, d *job.Definition) {
	t.Helper()
	ctx := context.Background()
	if err := h.store.CreateJob(ctx, d); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	now := time.Now()
	if err := h.queue.Enqueue(ctx, d.ID, now); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got, ok, err := h.queue.Claim(ctx, now, 10*time.Second)
	if err != nil || !ok || got.String() != d.ID.String() {
		t.Fatalf("Claim = %v, %v, %v; want %s", got, ok, err, d.ID)
	}
}

func (h *harness) pending(t *testing.T) []queue.Entry {
	t.Helper()
	entries, err := h.queue.Entries(context.Background(), queue.SetPending)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	return entries
}

func (h *harness) processing(t *testing.T) []queue.Entry {
	t.Helper()
	entries, err := h.queue.Entries(context.Background(), queue.SetProcessing)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	return entries
}

func (h *harness) load(t *testing.T, jobID id.JobID) *job.Definition {
	t.Helper()
	d, err := h.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return d
}

func fastRetry() worker.ExecutorOption {
	return worker.WithRetryBackoff(backoff.NewConstant(10 * time.Millisecond))
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestExecutor_SuccessReschedules(t *testing.T) {
	r := &scriptedRunner{}
	h := newHarness(t, r)
	d := job.New("heartbeat", "*/5 * * * * *", "true", job.WithHost(id.NewHostID()), job.WithRetryCount(2))
	h.claim(t, d)

	start := time.Now()
	if err := h.executor().Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	end := time.Now()

	if got := len(r.callTimes()); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
	stored := h.load(t, d.ID)
	if !stored.Enabled {
		t.Fatal("job should stay enabled")
	}
	if stored.LastExecutedAt == nil {
		t.Fatal("LastExecutedAt not recorded")
	}
	if len(h.processing(t)) != 0 {
		t.Fatal("claim should be acked")
	}
	pending := h.pending(t)
	if len(pending) != 1 || pending[0].JobID.String() != d.ID.String() {
		t.Fatalf("expected next run queued, got %v", pending)
	}
	if due := pending[0].Score; !due.After(start) || due.After(end.Add(5*time.Second)) {
		t.Fatalf("next run %v not within 5s of the run", due)
	}
	if h.hooks.succeeded != 1 {
		t.Fatalf("expected 1 success hook, got %d", h.hooks.succeeded)
	}
}

func TestExecutor_DisableOnExhaustion(t *testing.T) {
	r := &scriptedRunner{err: &sshexec.StageError{Stage: sshexec.StageConnect, Kind: sshexec.KindTimeout, Host: "10.0.0.1"}}
	h := newHarness(t, r)
	d := job.New("flaky", "0 * * * *", "true", job.WithHost(id.NewHostID()), job.WithRetryCount(3))
	h.claim(t, d)

	err := h.executor(fastRetry()).Process(context.Background(), d.ID)
	if !errors.Is(err, fleetcron.ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if !sshexec.IsTimeout(err, sshexec.StageConnect) {
		t.Fatalf("expected the connect timeout to be wrapped, got %v", err)
	}

	if got := len(r.callTimes()); got != 4 {
		t.Fatalf("expected 1 run + 3 retries, got %d runs", got)
	}
	if h.load(t, d.ID).Enabled {
		t.Fatal("job should be disabled")
	}
	if len(h.pending(t)) != 0 || len(h.processing(t)) != 0 {
		t.Fatal("disabled job must not remain queued")
	}
	if h.hooks.failed != 4 || h.hooks.retrying != 3 || h.hooks.disabled != 1 {
		t.Fatalf("hooks failed=%d retrying=%d disabled=%d, want 4/3/1",
			h.hooks.failed, h.hooks.retrying, h.hooks.disabled)
	}
}

func TestExecutor_EveryFiveSecondsFailingJob(t *testing.T) {
	r := &scriptedRunner{exit: 1}
	h := newHarness(t, r)
	d := job.New("always-fails", "*/5 * * * * *", "false", job.WithHost(id.NewHostID()), job.WithRetryCount(2))
	h.claim(t, d)

	err := h.executor().Process(context.Background(), d.ID)
	if !errors.Is(err, fleetcron.ErrNonZeroExit) {
		t.Fatalf("expected non-zero exit failure, got %v", err)
	}

	calls := r.callTimes()
	if len(calls) != 3 {
		t.Fatalf("expected exactly 2 retries after the first run, got %d runs", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		if gap < 190*time.Millisecond || gap > time.Second {
			t.Errorf("gap %d = %v, want about 200ms", i, gap)
		}
	}
	if h.load(t, d.ID).Enabled {
		t.Fatal("job should be disabled")
	}

	// No further firings: a periodic sync does not bring it back.
	if err := h.rec.PeriodicSync(context.Background()); err != nil {
		t.Fatalf("PeriodicSync: %v", err)
	}
	if len(h.pending(t)) != 0 {
		t.Fatal("disabled job was re-enqueued")
	}
}

func TestExecutor_NoRetryPolicy(t *testing.T) {
	r := &scriptedRunner{exit: 2}
	h := newHarness(t, r)
	d := job.New("no-policy", "*/5 * * * * *", "false", job.WithHost(id.NewHostID()))
	h.claim(t, d)

	err := h.executor(fastRetry()).Process(context.Background(), d.ID)
	if !errors.Is(err, fleetcron.ErrNonZeroExit) {
		t.Fatalf("expected non-zero exit failure, got %v", err)
	}
	if errors.Is(err, fleetcron.ErrMaxRetriesExceeded) {
		t.Fatal("job without retry_count must not be disabled")
	}
	if got := len(r.callTimes()); got != 1 {
		t.Fatalf("expected a single run, got %d", got)
	}
	if !h.load(t, d.ID).Enabled {
		t.Fatal("job should stay enabled")
	}
	if len(h.pending(t)) != 1 {
		t.Fatal("next run should be queued")
	}
}

func TestExecutor_RecoversBeforeExhaustion(t *testing.T) {
	r := &scriptedRunner{exit: 1}
	r.onRun = func() {
		if len(r.callTimes()) == 2 {
			r.mu.Lock()
			r.exit = 0
			r.mu.Unlock()
		}
	}
	h := newHarness(t, r)
	d := job.New("eventually", "0 * * * *", "true", job.WithHost(id.NewHostID()), job.WithRetryCount(3))
	h.claim(t, d)

	if err := h.executor(fastRetry()).Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := len(r.callTimes()); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}
	if !h.load(t, d.ID).Enabled {
		t.Fatal("job should stay enabled")
	}
}

func TestExecutor_DisabledDuringRunIsNotRequeued(t *testing.T) {
	r := &scriptedRunner{}
	h := newHarness(t, r)
	d := job.New("toggled", "*/5 * * * * *", "true", job.WithHost(id.NewHostID()))
	r.onRun = func() {
		if err := h.store.SetEnabled(context.Background(), d.ID, false); err != nil {
			t.Errorf("SetEnabled: %v", err)
		}
	}
	h.claim(t, d)

	if err := h.executor().Process(context.Background(), d.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(h.pending(t)) != 0 {
		t.Fatal("job disabled mid-run was re-enqueued")
	}
}

func TestExecutor_SkipsDisabledAndMissing(t *testing.T) {
	r := &scriptedRunner{}
	h := newHarness(t, r)

	off := job.New("off", "*/5 * * * * *", "true", job.WithHost(id.NewHostID()), job.WithDisabled())
	h.claim(t, off)
	if err := h.executor().Process(context.Background(), off.ID); err != nil {
		t.Fatalf("Process disabled: %v", err)
	}

	ghost := id.NewJobID()
	ctx := context.Background()
	now := time.Now()
	if err := h.queue.Enqueue(ctx, ghost, now); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, _, err := h.queue.Claim(ctx, now, time.Second); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := h.executor().Process(ctx, ghost); err != nil {
		t.Fatalf("Process missing: %v", err)
	}

	if got := len(r.callTimes()); got != 0 {
		t.Fatalf("expected no runs, got %d", got)
	}
	if len(h.pending(t)) != 0 || len(h.processing(t)) != 0 {
		t.Fatal("queue should be empty")
	}
}

func TestExecutor_MiddlewareSeesEveryAttempt(t *testing.T) {
	r := &scriptedRunner{exit: 1}
	h := newHarness(t, r)
	d := job.New("counted", "0 * * * *", "false", job.WithHost(id.NewHostID()), job.WithRetryCount(1))
	h.claim(t, d)

	var seen []int
	spy := func(ctx context.Context, a *middleware.Attempt, next middleware.Handler) error {
		seen = append(seen, a.Number*10+a.Of)
		return next(ctx)
	}
	_ = h.executor(fastRetry(), worker.WithMiddleware(middleware.Recover(slog.Default()), spy)).
		Process(context.Background(), d.ID)

	if len(seen) != 2 || seen[0] != 12 || seen[1] != 22 {
		t.Fatalf("attempts seen = %v, want [12 22]", seen)
	}
}

func TestExecutor_Fleet(t *testing.T) {
	key, err := secret.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	cipher, err := secret.NewCipherFromHex(key)
	if err != nil {
		t.Fatal(err)
	}
	server := sshtest.NewServer(t, host.DefaultUser, "pw")
	server.Handle("uptime", sshtest.Reply{Stdout: "up 3 days\n"})
	server.Handle("broken", sshtest.Reply{ExitCode: 1})
	dialer := sshtest.NewDialer()
	dialer.Route("up", server.Addr())
	dialer.Route("down", sshtest.Blackhole)

	s := memory.New()
	ctx := context.Background()
	g := host.NewGroup("edge", "")
	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatal(err)
	}
	for _, addr := range []string{"up", "down"} {
		hst := host.New(addr, addr, g.ID)
		hst.EncryptedPassword, _ = cipher.Encrypt("pw")
		if err := s.CreateHost(ctx, hst); err != nil {
			t.Fatal(err)
		}
	}
	orch := sshexec.New(s, cipher,
		sshexec.WithDialer(dialer),
		sshexec.WithConnectTimeout(200*time.Millisecond),
		sshexec.WithLogStore(s),
	)

	h := newHarness(t, orch)
	h.store = s
	h.rec = cron.NewReconciler(s, h.queue, slog.Default())

	partial := job.New("uptime", "0 * * * *", "uptime", job.WithGroup(g.ID), job.WithRetryCount(0))
	h.claim(t, partial)
	if err := h.executor().Process(ctx, partial.ID); err != nil {
		t.Fatalf("one reachable host should make the run succeed: %v", err)
	}
	if !h.load(t, partial.ID).Enabled {
		t.Fatal("partially failing fleet job should stay enabled")
	}

	broken := job.New("broken", "0 * * * *", "broken", job.WithGroup(g.ID), job.WithRetryCount(0))
	h.claim(t, broken)
	err = h.executor().Process(ctx, broken.ID)
	if !errors.Is(err, fleetcron.ErrMaxRetriesExceeded) {
		t.Fatalf("expected fleet job to be disabled, got %v", err)
	}
	if h.load(t, broken.ID).Enabled {
		t.Fatal("fleet job failing on every host should be disabled")
	}
}
