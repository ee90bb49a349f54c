// Package engine builds a fleetcron process from a Config.
//
// # Building an Engine
//
//	b, err := engine.Open(ctx, cfg, logger)
//	if err != nil { ... }
//	defer b.Close()
//
//	eng, err := engine.Build(cfg, b.Store, b.Queue,
//	    engine.WithLogger(logger),
//	    engine.WithPrometheus(prometheus.DefaultRegisterer),
//	)
//
// Start runs the initial schedule sync and then the reconciler loops and
// the worker pool. API-only processes skip Start and use the orchestrator
// and the admin operations directly.
//
// # Admin operations
//
//   - [Engine.CreateJob] validates targets and schedule, then enqueues
//   - [Engine.SetJobEnabled] flips the flag and reconciles the queue
//   - [Engine.DeleteJob] removes a job and its pending entry
//   - [Engine.RegisterHost] seals the password and stores the host
package engine
