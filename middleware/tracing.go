package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/fleetcron"

// Tracing wraps each attempt in a span from the global TracerProvider. With
// no provider configured it is a pass-through.
//
// Span attributes: fleetcron.job.id, fleetcron.job.name,
// fleetcron.job.target, fleetcron.attempt, fleetcron.attempts.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) error {
		target := "host"
		if a.Job.IsFleet() {
			target = "group"
		}
		ctx, span := tracer.Start(ctx, "fleetcron.job.attempt",
			trace.WithAttributes(
				attribute.String("fleetcron.job.id", a.Job.ID.String()),
				attribute.String("fleetcron.job.name", a.Job.Name),
				attribute.String("fleetcron.job.target", target),
				attribute.Int("fleetcron.attempt", a.Number),
				attribute.Int("fleetcron.attempts", a.Of),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
