package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/fleetcron/backoff"
	"github.com/xraph/fleetcron/ext"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/queue"
)

// Processor handles one claimed job id. *Executor satisfies it.
type Processor interface {
	Process(ctx context.Context, jobID id.JobID) error
}

// Pool runs the dispatch loop: claim a due job, start it in its own
// goroutine, claim again. Exclusivity comes entirely from the queue's
// atomic claim, so any number of pools may share one queue.
type Pool struct {
	queue      queue.Queue
	processor  Processor
	extensions *ext.Registry
	gate       *queue.Gate
	logger     *slog.Logger
	workerID   id.WorkerID

	loops             int
	pollInterval      time.Duration
	processingTimeout time.Duration
	errorBackoff      backoff.Strategy

	stopCh   chan struct{}
	loopWG   sync.WaitGroup
	jobsWG   sync.WaitGroup
	inFlight atomic.Int64
	mu       sync.Mutex
	running  bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of claim loops. Default 1.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.loops = max(n, 1) }
}

// WithPollInterval sets the sleep after an empty claim. Default 100ms.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithProcessingTimeout sets the claim deadline. A claim not acked within
// it is returned to pending by the reconciler. Default 10s.
func WithProcessingTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.processingTimeout = d }
}

// WithErrorBackoff sets the sleep after a failed claim, indexed by the
// number of consecutive failures.
func WithErrorBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.errorBackoff = s }
}

// WithGate bounds claim rate and in-flight runs.
func WithGate(g *queue.Gate) PoolOption {
	return func(p *Pool) { p.gate = g }
}

// NewPool creates a Pool.
func NewPool(q queue.Queue, processor Processor, extensions *ext.Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	p := &Pool{
		queue:             q,
		processor:         processor,
		extensions:        extensions,
		logger:            logger,
		workerID:          id.NewWorkerID(),
		loops:             1,
		pollInterval:      100 * time.Millisecond,
		processingTimeout: 10 * time.Second,
		errorBackoff:      backoff.DefaultError(),
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// InFlight returns the number of running jobs.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Start launches the claim loops and returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("loops", p.loops),
		slog.Duration("poll_interval", p.pollInterval),
	)
	for range p.loops {
		p.loopWG.Add(1)
		go p.claimLoop()
	}
	return nil
}

// Stop ends claiming and waits for in-flight jobs until ctx is done. Jobs
// still running at that point are left to finish on their own.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	close(p.stopCh)
	p.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		p.jobsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out with jobs still running",
			slog.Int("in_flight", p.InFlight()),
		)
	}
	return nil
}

func (p *Pool) claimLoop() {
	defer p.loopWG.Done()

	failures := 0
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.gate != nil && !p.gate.Acquire() {
			p.sleep(p.pollInterval)
			continue
		}

		jobID, ok, err := p.queue.Claim(context.Background(), time.Now(), p.processingTimeout)
		if err != nil {
			p.release()
			failures++
			delay := p.errorBackoff.Delay(failures)
			p.logger.Error("claim failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", failures),
				slog.Duration("backoff", delay),
			)
			p.sleep(delay)
			continue
		}
		failures = 0

		if !ok {
			p.release()
			p.sleep(p.pollInterval)
			continue
		}

		p.extensions.EmitJobClaimed(context.Background(), jobID)
		p.jobsWG.Add(1)
		p.inFlight.Add(1)
		go p.run(jobID)
	}
}

func (p *Pool) run(jobID id.JobID) {
	defer p.jobsWG.Done()
	defer p.inFlight.Add(-1)
	defer p.release()

	if err := p.processor.Process(context.Background(), jobID); err != nil {
		p.logger.Debug("job run ended with error",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) release() {
	if p.gate != nil {
		p.gate.Release()
	}
}

func (p *Pool) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stopCh:
	}
}
