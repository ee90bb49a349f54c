package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging logs the start and outcome of every attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) error {
		attrs := []any{
			slog.String("job_id", a.Job.ID.String()),
			slog.String("job_name", a.Job.Name),
			slog.Int("attempt", a.Number),
			slog.Int("of", a.Of),
		}
		logger.Debug("job attempt started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Warn("job attempt failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.Info("job attempt succeeded", attrs...)
		}
		return err
	}
}
