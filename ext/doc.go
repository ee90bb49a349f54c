// Package ext defines the extension system for fleetcron.
//
// Extensions implement [Extension] plus any of the hook interfaces they
// care about. The [Registry] fans each event out to the extensions that
// implement the matching hook, in registration order. A hook error is
// logged and otherwise ignored.
//
//	type alerter struct{}
//
//	func (alerter) Name() string { return "alerter" }
//
//	func (alerter) OnJobDisabled(ctx context.Context, d *job.Definition, err error) error {
//	    return page(ctx, d.Name, err)
//	}
//
// # Job hooks
//
//   - [JobClaimed] a dispatch loop claimed a due job
//   - [JobSucceeded] an attempt succeeded
//   - [JobAttemptFailed] an attempt failed
//   - [JobRetrying] a failed job is about to be attempted again
//   - [JobDisabled] a job exhausted its retries and was disabled
//
// # Other hooks
//
//   - [HostExecuted] one host finished a remote execution
//   - [ScheduleSynced] a reconcile pass finished
//   - [JobsReclaimed] expired claims went back to pending
//   - [Shutdown] the engine is stopping
package ext
