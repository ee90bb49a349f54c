package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/fleetcron/ext"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.JobSucceeded     = (*Extension)(nil)
	_ ext.JobAttemptFailed = (*Extension)(nil)
	_ ext.JobRetrying      = (*Extension)(nil)
	_ ext.JobDisabled      = (*Extension)(nil)
	_ ext.HostExecuted     = (*Extension)(nil)
	_ ext.JobsReclaimed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder writes each event as one log record on l, at Info, Warn or
// Error level by severity.
func SlogRecorder(l *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			if k != "error" {
				attrs = append(attrs, slog.Any(k, v))
			}
		}
		l.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges fleetcron lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSucceeded implements ext.JobSucceeded.
func (e *Extension) OnJobSucceeded(ctx context.Context, d *job.Definition, elapsed time.Duration) error {
	return e.record(ctx, ActionJobSucceeded, SeverityInfo, OutcomeSuccess,
		ResourceJob, d.ID.String(), CategoryJob, nil,
		"job_name", d.Name,
		"target", target(d),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobAttemptFailed implements ext.JobAttemptFailed.
func (e *Extension) OnJobAttemptFailed(ctx context.Context, d *job.Definition, attempt int, jobErr error) error {
	return e.record(ctx, ActionJobAttemptFailed, SeverityWarning, OutcomeFailure,
		ResourceJob, d.ID.String(), CategoryJob, jobErr,
		"job_name", d.Name,
		"target", target(d),
		"attempt", attempt,
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, d *job.Definition, attempt int, delay time.Duration) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, d.ID.String(), CategoryJob, nil,
		"job_name", d.Name,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
	)
}

// OnJobDisabled implements ext.JobDisabled.
func (e *Extension) OnJobDisabled(ctx context.Context, d *job.Definition, jobErr error) error {
	retries, _ := d.Retries()
	return e.record(ctx, ActionJobDisabled, SeverityCritical, OutcomeFailure,
		ResourceJob, d.ID.String(), CategoryJob, jobErr,
		"job_name", d.Name,
		"target", target(d),
		"retry_count", retries,
	)
}

// ── Host and queue hooks ────────────────────────────

// OnHostExecuted implements ext.HostExecuted.
func (e *Extension) OnHostExecuted(ctx context.Context, server string, exitCode int, execErr error, elapsed time.Duration) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	if execErr != nil || exitCode != 0 {
		severity, outcome = SeverityWarning, OutcomeFailure
	}
	return e.record(ctx, ActionHostExecuted, severity, outcome,
		ResourceHost, server, CategoryHost, execErr,
		"exit_code", exitCode,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobsReclaimed implements ext.JobsReclaimed.
func (e *Extension) OnJobsReclaimed(ctx context.Context, jobIDs []id.JobID) error {
	ids := make([]string, len(jobIDs))
	for i, j := range jobIDs {
		ids[i] = j.String()
	}
	return e.record(ctx, ActionClaimsReclaimed, SeverityWarning, OutcomeFailure,
		ResourceQueue, "processing", CategoryQueue, nil,
		"job_ids", strings.Join(ids, ","),
		"count", len(ids),
	)
}

// ── Internal helpers ────────────────────────────────

func target(d *job.Definition) string {
	if d.IsFleet() {
		return "group:" + d.GroupID.String()
	}
	return "host:" + d.HostID.String()
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
