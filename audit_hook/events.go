package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobSucceeded     = "job.succeeded"
	ActionJobAttemptFailed = "job.attempt_failed"
	ActionJobRetrying      = "job.retrying"
	ActionJobDisabled      = "job.disabled"
	ActionHostExecuted     = "host.executed"
	ActionClaimsReclaimed  = "queue.claims_reclaimed"
)

// Audit event categories group related actions.
const (
	CategoryJob   = "fleetcron.job"
	CategoryHost  = "fleetcron.host"
	CategoryQueue = "fleetcron.queue"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob   = "job"
	ResourceHost  = "host"
	ResourceQueue = "queue"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobSucceeded,
		ActionJobAttemptFailed,
		ActionJobRetrying,
		ActionJobDisabled,
		ActionHostExecuted,
		ActionClaimsReclaimed,
	}
}
