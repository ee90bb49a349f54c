package middleware

import (
	"context"

	"github.com/xraph/fleetcron/job"
)

// Attempt is one execution attempt of a scheduled job.
type Attempt struct {
	Job *job.Definition
	// Number is 1 for the first attempt and grows with each retry.
	Number int
	// Of is the total number of attempts allowed.
	Of int
}

// Handler is the terminal function that performs the attempt.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It must call next
// unless it is deliberately short-circuiting.
type Middleware func(ctx context.Context, a *Attempt, next Handler) error

// Chain composes middleware into one. The first middleware in the list is
// the outermost wrapper:
//
//	Chain(recover, logging, tracing) runs recover → logging → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, a, prev)
			}
		}
		return h(ctx)
	}
}
