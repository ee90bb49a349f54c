package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
	mw "github.com/xraph/fleetcron/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func newTestAttempt() *mw.Attempt {
	d := job.New("rotate-logs", "0 3 * * *", "logrotate -f /etc/logrotate.conf",
		job.WithGroup(id.NewGroupID()),
		job.WithRetryCount(2),
	)
	return &mw.Attempt{Job: d, Number: 2, Of: 3}
}

func TestTracing_CreatesSpan(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	if err := m(context.Background(), newTestAttempt(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "fleetcron.job.attempt" {
		t.Errorf("expected span name %q, got %q", "fleetcron.job.attempt", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected status Ok, got %v", spans[0].Status().Code)
	}
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)
	a := newTestAttempt()

	_ = m(context.Background(), a, func(context.Context) error { return nil })

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	got := make(map[string]any)
	for _, kv := range spans[0].Attributes() {
		got[string(kv.Key)] = kv.Value.AsInterface()
	}
	expected := map[string]any{
		"fleetcron.job.id":     a.Job.ID.String(),
		"fleetcron.job.name":   "rotate-logs",
		"fleetcron.job.target": "group",
		"fleetcron.attempt":    int64(2),
		"fleetcron.attempts":   int64(3),
	}
	for key, want := range expected {
		if got[key] != want {
			t.Errorf("attribute %q = %v, want %v", key, got[key], want)
		}
	}
}

func TestTracing_Error_SetsErrorStatus(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	attemptErr := errors.New("exit status 2")
	err := m(context.Background(), newTestAttempt(), func(context.Context) error { return attemptErr })
	if !errors.Is(err, attemptErr) {
		t.Fatalf("expected attempt error, got %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected status Error, got %v", spans[0].Status().Code)
	}
	if spans[0].Status().Description != "exit status 2" {
		t.Errorf("expected description %q, got %q", "exit status 2", spans[0].Status().Description)
	}

	found := false
	for _, ev := range spans[0].Events() {
		if ev.Name == "exception" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected 'exception' event to be recorded on span")
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	var inner trace.SpanContext
	_ = m(context.Background(), newTestAttempt(), func(ctx context.Context) error {
		inner = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if !inner.IsValid() {
		t.Fatal("expected valid span context in handler")
	}
	if inner.TraceID() != spans[0].SpanContext().TraceID() {
		t.Error("handler span context trace ID does not match middleware span")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Tracing()(context.Background(), newTestAttempt(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}
