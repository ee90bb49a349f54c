// Package audithook is a fleetcron extension that turns lifecycle events
// into an audit trail.
//
// Job outcomes, retries, disables, per-host executions and reclaimed
// claims each emit a structured [AuditEvent] through the [Recorder]
// interface. Severity is info for normal operations, warning for retries
// and failed attempts, and critical when a job is disabled.
//
// # Usage
//
//	eng, err := engine.Build(cfg, st, q,
//	    engine.WithExtension(audithook.New(audithook.SlogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobDisabled,
//	        audithook.ActionClaimsReclaimed,
//	    ),
//	)
package audithook
