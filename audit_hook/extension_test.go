package audithook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/fleetcron/audit_hook"
	"github.com/xraph/fleetcron/ext"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestJob() *job.Definition {
	retries := 3
	return &job.Definition{
		ID:         id.NewJobID(),
		Name:       "rotate-logs",
		Schedule:   "0 3 * * *",
		HostID:     id.NewHostID(),
		Command:    "logrotate -f /etc/logrotate.conf",
		Enabled:    true,
		RetryCount: &retries,
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	e := ah.New(&mockRecorder{})
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

func TestExtension_JobSucceeded(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	d := newTestJob()
	elapsed := 150 * time.Millisecond

	if err := e.OnJobSucceeded(context.Background(), d, elapsed); err != nil {
		t.Fatalf("OnJobSucceeded: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionJobSucceeded {
		t.Errorf("Action: want %q, got %q", ah.ActionJobSucceeded, evt.Action)
	}
	if evt.Resource != ah.ResourceJob {
		t.Errorf("Resource: want %q, got %q", ah.ResourceJob, evt.Resource)
	}
	if evt.Category != ah.CategoryJob {
		t.Errorf("Category: want %q, got %q", ah.CategoryJob, evt.Category)
	}
	if evt.ResourceID != d.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", d.ID.String(), evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["elapsed_ms"] != elapsed.Milliseconds() {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", elapsed.Milliseconds(), evt.Metadata["elapsed_ms"])
	}
	if evt.Metadata["target"] != "host:"+d.HostID.String() {
		t.Errorf("Metadata[target]: got %v", evt.Metadata["target"])
	}
}

func TestExtension_JobAttemptFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	d := newTestJob()

	if err := e.OnJobAttemptFailed(context.Background(), d, 2, errors.New("exit status 1")); err != nil {
		t.Fatalf("OnJobAttemptFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobAttemptFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionJobAttemptFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.Reason != "exit status 1" {
		t.Errorf("Reason: want %q, got %q", "exit status 1", evt.Reason)
	}
	if evt.Metadata["attempt"] != 2 {
		t.Errorf("Metadata[attempt]: want 2, got %v", evt.Metadata["attempt"])
	}
}

func TestExtension_JobRetrying(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnJobRetrying(context.Background(), newTestJob(), 1, time.Second); err != nil {
		t.Fatalf("OnJobRetrying: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobRetrying {
		t.Errorf("Action: want %q, got %q", ah.ActionJobRetrying, evt.Action)
	}
	if evt.Metadata["delay_ms"] != int64(1000) {
		t.Errorf("Metadata[delay_ms]: want 1000, got %v", evt.Metadata["delay_ms"])
	}
}

func TestExtension_JobDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	d := newTestJob()
	d.HostID = id.Nil
	d.GroupID = id.NewGroupID()

	if err := e.OnJobDisabled(context.Background(), d, errors.New("connect timeout")); err != nil {
		t.Fatalf("OnJobDisabled: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobDisabled {
		t.Errorf("Action: want %q, got %q", ah.ActionJobDisabled, evt.Action)
	}
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Metadata["retry_count"] != 3 {
		t.Errorf("Metadata[retry_count]: want 3, got %v", evt.Metadata["retry_count"])
	}
	if evt.Metadata["target"] != "group:"+d.GroupID.String() {
		t.Errorf("Metadata[target]: got %v", evt.Metadata["target"])
	}
}

func TestExtension_HostExecuted(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		err      error
		severity string
		outcome  string
	}{
		{"ok", 0, nil, ah.SeverityInfo, ah.OutcomeSuccess},
		{"nonzero", 2, nil, ah.SeverityWarning, ah.OutcomeFailure},
		{"error", 1, errors.New("dial tcp: i/o timeout"), ah.SeverityWarning, ah.OutcomeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			e := ah.New(rec)

			if err := e.OnHostExecuted(context.Background(), "10.0.0.5", tt.exitCode, tt.err, 20*time.Millisecond); err != nil {
				t.Fatalf("OnHostExecuted: %v", err)
			}

			evt := rec.last()
			if evt.Resource != ah.ResourceHost || evt.ResourceID != "10.0.0.5" {
				t.Errorf("resource: got %q/%q", evt.Resource, evt.ResourceID)
			}
			if evt.Severity != tt.severity {
				t.Errorf("Severity: want %q, got %q", tt.severity, evt.Severity)
			}
			if evt.Outcome != tt.outcome {
				t.Errorf("Outcome: want %q, got %q", tt.outcome, evt.Outcome)
			}
			if evt.Metadata["exit_code"] != tt.exitCode {
				t.Errorf("Metadata[exit_code]: want %d, got %v", tt.exitCode, evt.Metadata["exit_code"])
			}
		})
	}
}

func TestExtension_JobsReclaimed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	a, b := id.NewJobID(), id.NewJobID()

	if err := e.OnJobsReclaimed(context.Background(), []id.JobID{a, b}); err != nil {
		t.Fatalf("OnJobsReclaimed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionClaimsReclaimed {
		t.Errorf("Action: want %q, got %q", ah.ActionClaimsReclaimed, evt.Action)
	}
	if evt.Category != ah.CategoryQueue {
		t.Errorf("Category: want %q, got %q", ah.CategoryQueue, evt.Category)
	}
	if evt.Metadata["count"] != 2 {
		t.Errorf("Metadata[count]: want 2, got %v", evt.Metadata["count"])
	}
	if evt.Metadata["job_ids"] != a.String()+","+b.String() {
		t.Errorf("Metadata[job_ids]: got %v", evt.Metadata["job_ids"])
	}
}

// ── Filtering ────────────────────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionJobDisabled))
	ctx := context.Background()
	d := newTestJob()

	if err := e.OnJobSucceeded(ctx, d, time.Millisecond); err != nil {
		t.Fatalf("OnJobSucceeded: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (succeeded filtered), got %d", rec.count())
	}

	if err := e.OnJobDisabled(ctx, d, errors.New("boom")); err != nil {
		t.Fatalf("OnJobDisabled: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 event, got %d", rec.count())
	}
}

// ── Recorders ────────────────────────────────────────

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failing := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})

	e := ah.New(failing, ah.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := e.OnJobSucceeded(context.Background(), newTestJob(), time.Millisecond); err != nil {
		t.Fatalf("expected recorder error to be swallowed, got: %v", err)
	}
}

func TestSlogRecorder_LevelBySeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := ah.New(ah.SlogRecorder(logger))
	d := newTestJob()

	if err := e.OnJobDisabled(context.Background(), d, errors.New("connect timeout")); err != nil {
		t.Fatalf("OnJobDisabled: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["level"] != "ERROR" {
		t.Errorf("level: want ERROR, got %v", line["level"])
	}
	if line["action"] != ah.ActionJobDisabled {
		t.Errorf("action: got %v", line["action"])
	}
	if line["resource_id"] != d.ID.String() {
		t.Errorf("resource_id: got %v", line["resource_id"])
	}
	if line["reason"] != "connect timeout" {
		t.Errorf("reason: got %v", line["reason"])
	}
}

// ── Registry integration ─────────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	reg := ext.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.Register(ah.New(rec))

	ctx := context.Background()
	d := newTestJob()

	reg.EmitJobClaimed(ctx, d.ID)
	reg.EmitJobSucceeded(ctx, d, 50*time.Millisecond)
	reg.EmitJobAttemptFailed(ctx, d, 1, errors.New("fail"))
	reg.EmitJobRetrying(ctx, d, 1, time.Second)
	reg.EmitJobDisabled(ctx, d, errors.New("dead"))
	reg.EmitHostExecuted(ctx, "10.0.0.5", 0, nil, time.Millisecond)
	reg.EmitScheduleSynced(ctx, "periodic", 4)
	reg.EmitJobsReclaimed(ctx, []id.JobID{d.ID})

	// Claims and syncs are not audited.
	allActions := ah.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}
	for _, action := range allActions {
		if rec.findByAction(action) == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}

func TestAllActions(t *testing.T) {
	if n := len(ah.AllActions()); n != 6 {
		t.Errorf("expected 6 actions, got %d", n)
	}
}
