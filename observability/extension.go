package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/fleetcron/ext"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
	"github.com/xraph/fleetcron/sshexec"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.JobClaimed       = (*MetricsExtension)(nil)
	_ ext.JobSucceeded     = (*MetricsExtension)(nil)
	_ ext.JobAttemptFailed = (*MetricsExtension)(nil)
	_ ext.JobRetrying      = (*MetricsExtension)(nil)
	_ ext.JobDisabled      = (*MetricsExtension)(nil)
	_ ext.HostExecuted     = (*MetricsExtension)(nil)
	_ ext.ScheduleSynced   = (*MetricsExtension)(nil)
	_ ext.JobsReclaimed    = (*MetricsExtension)(nil)
)

const namespace = "fleetcron"

// MetricsExtension records lifecycle events as Prometheus metrics.
type MetricsExtension struct {
	JobsClaimed    prometheus.Counter
	JobsSucceeded  prometheus.Counter
	AttemptsFailed prometheus.Counter
	JobsRetried    prometheus.Counter
	JobsDisabled   prometheus.Counter
	JobsReclaimed  prometheus.Counter

	// HostExecutions is labelled by outcome: ok, nonzero, or
	// "<stage>_<kind>" for stage errors.
	HostExecutions *prometheus.CounterVec
	HostDuration   prometheus.Histogram

	// SyncPasses is labelled by phase; SyncQueued holds the last pass's
	// count per phase.
	SyncPasses *prometheus.CounterVec
	SyncQueued *prometheus.GaugeVec
}

// NewMetricsExtension creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsExtension(reg prometheus.Registerer) (*MetricsExtension, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	m := &MetricsExtension{
		JobsClaimed:    counter("jobs_claimed_total", "Job runs claimed from the queue."),
		JobsSucceeded:  counter("jobs_succeeded_total", "Job runs that succeeded."),
		AttemptsFailed: counter("job_attempts_failed_total", "Failed job attempts, retries included."),
		JobsRetried:    counter("job_retries_total", "Retry attempts started."),
		JobsDisabled:   counter("jobs_disabled_total", "Jobs disabled after exhausting retries."),
		JobsReclaimed:  counter("claims_reclaimed_total", "Expired claims returned to pending."),
		HostExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_executions_total",
			Help:      "Remote executions per outcome.",
		}, []string{"outcome"}),
		HostDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "host_execution_duration_seconds",
			Help:      "Wall time of one remote execution, all stages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}),
		SyncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_passes_total",
			Help:      "Reconcile passes per phase.",
		}, []string{"phase"}),
		SyncQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_last_queued",
			Help:      "Jobs queued by the most recent reconcile pass.",
		}, []string{"phase"}),
	}

	for _, c := range []prometheus.Collector{
		m.JobsClaimed, m.JobsSucceeded, m.AttemptsFailed, m.JobsRetried, m.JobsDisabled,
		m.JobsReclaimed, m.HostExecutions, m.HostDuration, m.SyncPasses, m.SyncQueued,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobClaimed implements ext.JobClaimed.
func (m *MetricsExtension) OnJobClaimed(context.Context, id.JobID) error {
	m.JobsClaimed.Inc()
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(context.Context, *job.Definition, time.Duration) error {
	m.JobsSucceeded.Inc()
	return nil
}

// OnJobAttemptFailed implements ext.JobAttemptFailed.
func (m *MetricsExtension) OnJobAttemptFailed(context.Context, *job.Definition, int, error) error {
	m.AttemptsFailed.Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(context.Context, *job.Definition, int, time.Duration) error {
	m.JobsRetried.Inc()
	return nil
}

// OnJobDisabled implements ext.JobDisabled.
func (m *MetricsExtension) OnJobDisabled(context.Context, *job.Definition, error) error {
	m.JobsDisabled.Inc()
	return nil
}

// OnHostExecuted implements ext.HostExecuted.
func (m *MetricsExtension) OnHostExecuted(_ context.Context, _ string, exitCode int, err error, elapsed time.Duration) error {
	m.HostExecutions.WithLabelValues(outcome(exitCode, err)).Inc()
	m.HostDuration.Observe(elapsed.Seconds())
	return nil
}

// OnScheduleSynced implements ext.ScheduleSynced.
func (m *MetricsExtension) OnScheduleSynced(_ context.Context, phase string, queued int) error {
	m.SyncPasses.WithLabelValues(phase).Inc()
	m.SyncQueued.WithLabelValues(phase).Set(float64(queued))
	return nil
}

// OnJobsReclaimed implements ext.JobsReclaimed.
func (m *MetricsExtension) OnJobsReclaimed(_ context.Context, jobIDs []id.JobID) error {
	m.JobsReclaimed.Add(float64(len(jobIDs)))
	return nil
}

func outcome(exitCode int, err error) string {
	var se *sshexec.StageError
	switch {
	case errors.As(err, &se):
		return string(se.Stage) + "_" + string(se.Kind)
	case err != nil:
		return "error"
	case exitCode != 0:
		return "nonzero"
	default:
		return "ok"
	}
}
