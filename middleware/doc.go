// Package middleware wraps each execution attempt of a scheduled job.
//
// A [Middleware] receives the [Attempt] and the next [Handler]. [Chain]
// composes several into one; the first is the outermost wrapper.
//
//	chain := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Logging(logger),
//	    middleware.Tracing(),
//	)
//
// # Built-in Middleware
//
//   - [Recover] turns a panic into an error
//   - [Logging] logs each attempt and its outcome
//   - [Tracing] wraps the attempt in an OpenTelemetry span
//   - [Metrics] records attempt duration and outcome with OpenTelemetry
//     instruments
package middleware
