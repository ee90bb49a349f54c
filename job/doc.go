// Package job defines scheduled job definitions and their store contract.
//
// A [Definition] binds a cron expression and a shell command to a host or
// a group of hosts. Only enabled definitions are ever placed in the
// near-term queue; the dispatch worker disables a definition whose every
// retry failed.
//
//	d := job.New("rotate-logs", "0 */5 * * * *", "logrotate -f /etc/logrotate.conf",
//	    job.WithGroup(webFleet),
//	    job.WithRetryCount(3),
//	)
//	if err := job.Validate(ctx, d, hostStore); err != nil { ... }
package job
