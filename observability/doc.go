// Package observability exports fleetcron metrics to Prometheus.
//
// MetricsExtension implements the ext hooks and counts claims, attempts,
// retries, disables, per-host executions, reconcile passes and reclaimed
// claims. RegisterPoolStats and RegisterQueueDepth add gauges read on
// scrape, and NewServer serves /metrics and /healthz.
//
// Per-attempt tracing and OpenTelemetry metrics live in the middleware
// package.
package observability
