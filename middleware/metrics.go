package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xraph/fleetcron"

// Metrics records attempt metrics with the global MeterProvider. With no
// provider configured the instruments are noops.
//
// Instruments:
//   - fleetcron.job.attempt.duration (Float64Histogram, seconds)
//   - fleetcron.job.attempts (Int64Counter)
//
// Both carry job_name and status ("ok" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"fleetcron.job.attempt.duration",
		metric.WithDescription("Duration of job execution attempts in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"fleetcron.job.attempts",
		metric.WithDescription("Total number of job execution attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, a *Attempt, next Handler) error {
		start := time.Now()
		err := next(ctx)

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("job_name", a.Job.Name),
			attribute.String("status", status),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
