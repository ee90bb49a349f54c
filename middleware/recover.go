package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover converts a panic in the chain into an error, logged with its
// stack.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job attempt panicked",
					slog.String("job_id", a.Job.ID.String()),
					slog.String("job_name", a.Job.Name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in job %s: %v", a.Job.Name, r)
			}
		}()
		return next(ctx)
	}
}
