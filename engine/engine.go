package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/backoff"
	"github.com/xraph/fleetcron/cron"
	"github.com/xraph/fleetcron/ext"
	mw "github.com/xraph/fleetcron/middleware"
	"github.com/xraph/fleetcron/observability"
	"github.com/xraph/fleetcron/queue"
	"github.com/xraph/fleetcron/secret"
	"github.com/xraph/fleetcron/sshexec"
	"github.com/xraph/fleetcron/store"
	"github.com/xraph/fleetcron/worker"
)

const instrumentationName = "github.com/xraph/fleetcron"

// Engine owns the scheduling and execution subsystems of one process.
type Engine struct {
	cfg    fleetcron.Config
	logger *slog.Logger

	store      store.Store
	queue      queue.Queue
	cipher     *secret.Cipher
	extensions *ext.Registry
	exts       []ext.Extension
	mws        []mw.Middleware

	orchestrator *sshexec.Orchestrator
	reconciler   *cron.Reconciler
	executor     *worker.Executor
	pool         *worker.Pool

	dialer     sshexec.Dialer
	registerer prometheus.Registerer
	metrics    *observability.MetricsExtension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware appends middleware after the default attempt chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithCipher sets the password cipher instead of deriving it from
// Config.SecretKey.
func WithCipher(c *secret.Cipher) Option {
	return func(eng *Engine) { eng.cipher = c }
}

// WithDialer replaces the TCP dialer used for SSH connections.
func WithDialer(d sshexec.Dialer) Option {
	return func(eng *Engine) { eng.dialer = d }
}

// WithPrometheus registers the metrics extension and queue depth gauges
// with reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(eng *Engine) { eng.registerer = reg }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build validates cfg and wires an Engine over st and q. Nothing runs
// until Start.
func Build(cfg fleetcron.Config, st store.Store, q queue.Queue, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fleetcron.ErrNoStore
	}
	if q == nil {
		return nil, fleetcron.ErrNoQueue
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		store:  st,
		queue:  q,
	}
	for _, opt := range opts {
		opt(eng)
	}
	eng.extensions = ext.NewRegistry(eng.logger)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	if eng.cipher == nil {
		c, err := secret.NewCipherFromHex(cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("%w: secret key: %w", fleetcron.ErrInvalidConfig, err)
		}
		eng.cipher = c
	}

	if eng.registerer != nil {
		m, err := observability.NewMetricsExtension(eng.registerer)
		if err != nil {
			return nil, fmt.Errorf("fleetcron/engine: register metrics: %w", err)
		}
		eng.metrics = m
		eng.extensions.Register(m)
		if err := observability.RegisterQueueDepth(eng.registerer, q); err != nil {
			return nil, fmt.Errorf("fleetcron/engine: register queue depth: %w", err)
		}
	}

	orchOpts := []sshexec.Option{
		sshexec.WithConnectTimeout(cfg.ConnectTimeout),
		sshexec.WithAuthTimeout(cfg.AuthTimeout),
		sshexec.WithExecTimeout(cfg.ExecTimeout),
		sshexec.WithMaxOutput(cfg.MaxOutputBytes),
		sshexec.WithChannelBuffer(cfg.ChannelBuffer),
		sshexec.WithLogStore(st),
		sshexec.WithLogger(eng.logger),
		sshexec.WithEmitter(eng.extensions),
		sshexec.WithPerHostCredentials(cfg.PerHostCredentials),
	}
	if eng.dialer != nil {
		orchOpts = append(orchOpts, sshexec.WithDialer(eng.dialer))
	}
	eng.orchestrator = sshexec.New(st, eng.cipher, orchOpts...)

	eng.reconciler = cron.NewReconciler(st, q, eng.logger,
		cron.WithReconcileInterval(cfg.ReconcileInterval),
		cron.WithSaveWindow(cfg.SaveWindow),
		cron.WithReclaimInterval(cfg.ReclaimInterval),
		cron.WithReclaimGrace(cfg.ReclaimGrace),
		cron.WithEmitter(eng.extensions),
	)

	// Build tracing middleware (custom provider or global).
	tracingMw := mw.Tracing()
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	}

	// Build metrics middleware (custom provider or global).
	metricsMw := mw.Metrics()
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	}

	// Default attempt chain: recover → tracing → metrics → logging.
	chain := make([]mw.Middleware, 0, 4+len(eng.mws))
	chain = append(chain,
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	)
	chain = append(chain, eng.mws...)

	eng.executor = worker.NewExecutor(st, q, eng.orchestrator, eng.reconciler, eng.extensions, eng.logger,
		worker.WithRetryBackoff(backoff.NewConstant(cfg.RetryDelay)),
		worker.WithMiddleware(chain...),
	)

	errBackoff := backoff.WithJitter(backoff.NewExponential(cfg.ErrorBackoff, cfg.MaxErrorBackoff), 0.2)
	eng.pool = worker.NewPool(q, eng.executor, eng.extensions, eng.logger,
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithProcessingTimeout(cfg.ProcessingTimeout),
		worker.WithErrorBackoff(errBackoff),
		worker.WithGate(queue.NewGate(queue.GateConfig{
			RateLimit:   cfg.ClaimRate,
			MaxInFlight: cfg.MaxInFlight,
		})),
	)

	return eng, nil
}

// Start prepares the queue and starts the reconciler and worker pool:
// optional purge, initial sync, then the periodic loops and claiming.
func (eng *Engine) Start(ctx context.Context) error {
	eng.logger.Warn("ssh host keys are not verified; connections can be intercepted on untrusted networks")

	if eng.cfg.ResetQueueOnStart {
		if err := eng.queue.Purge(ctx); err != nil {
			return fmt.Errorf("fleetcron/engine: purge queue: %w", err)
		}
		eng.logger.Info("queue purged on start")
	}

	if err := eng.reconciler.InitialSync(ctx); err != nil {
		return err
	}
	if err := eng.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("fleetcron/engine: start reconciler: %w", err)
	}
	if err := eng.pool.Start(ctx); err != nil {
		_ = eng.reconciler.Stop(ctx)
		return fmt.Errorf("fleetcron/engine: start pool: %w", err)
	}
	eng.started = true
	return nil
}

// Stop stops claiming, waits for in-flight runs until ctx is done, stops
// the reconciler and notifies extensions. The store and queue stay open;
// they belong to the caller.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.started {
		if err := eng.pool.Stop(ctx); err != nil {
			eng.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		if err := eng.reconciler.Stop(ctx); err != nil {
			eng.logger.Error("reconciler stop error", slog.String("error", err.Error()))
		}
		eng.started = false
	}
	eng.extensions.EmitShutdown(ctx)
	return nil
}

// Config returns the engine's configuration.
func (eng *Engine) Config() fleetcron.Config { return eng.cfg }

// Logger returns the engine's logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// Store returns the durable store.
func (eng *Engine) Store() store.Store { return eng.store }

// Queue returns the near-term queue.
func (eng *Engine) Queue() queue.Queue { return eng.queue }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Orchestrator returns the SSH orchestrator.
func (eng *Engine) Orchestrator() *sshexec.Orchestrator { return eng.orchestrator }

// Reconciler returns the schedule reconciler.
func (eng *Engine) Reconciler() *cron.Reconciler { return eng.reconciler }

// Executor returns the job executor.
func (eng *Engine) Executor() *worker.Executor { return eng.executor }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Metrics returns the Prometheus extension, or nil without WithPrometheus.
func (eng *Engine) Metrics() *observability.MetricsExtension { return eng.metrics }
