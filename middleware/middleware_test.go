package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/fleetcron/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *middleware.Attempt, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}
	mw2 := func(ctx context.Context, _ *middleware.Attempt, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	err := chain(context.Background(), newTestAttempt(), func(context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	err := middleware.Chain()(context.Background(), newTestAttempt(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	want := errors.New("connect timeout")
	err := middleware.Chain(middleware.Logging(slog.Default()))(context.Background(), newTestAttempt(),
		func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	m := middleware.Recover(slog.Default())
	err := m(context.Background(), newTestAttempt(), func(context.Context) error {
		panic("nil map write")
	})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if !strings.Contains(err.Error(), "nil map write") {
		t.Errorf("error %q does not mention the panic value", err)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	m := middleware.Recover(slog.Default())
	if err := m(context.Background(), newTestAttempt(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogging_Outcomes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := middleware.Logging(logger)
	a := newTestAttempt()

	_ = m(context.Background(), a, func(context.Context) error { return nil })
	_ = m(context.Background(), a, func(context.Context) error { return errors.New("exit 1") })

	out := buf.String()
	for _, want := range []string{"job attempt started", "job attempt succeeded", "job attempt failed", "attempt=2", "of=3", "error=\"exit 1\""} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
