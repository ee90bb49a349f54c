// Package fleetcron runs cron-scheduled and ad-hoc shell commands on remote
// hosts over SSH, singly or across a group of hosts (a fleet).
//
// # Architecture
//
// Job definitions, hosts, groups and execution logs live in a durable store
// (store/postgres). Runs due within a short horizon are mirrored into a
// near-term queue (store/redis or store/postgres) with two sorted sets,
// pending and processing. Any number of worker processes claim due jobs
// through a single atomic operation, so each due run executes on exactly one
// worker. The queue is a cache: cron.Reconciler rebuilds it from the store
// at startup and on a timer, and returns claims whose deadline expired.
//
// Executions go through sshexec.Orchestrator, which dials, authenticates
// and runs the command under separate timeouts and caps captured output.
// A job that keeps failing is retried a configurable number of times and
// then disabled.
//
// # Host keys
//
// Remote host keys are not verified. Any key is accepted, which leaves
// connections open to interception on untrusted networks.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package fleetcron
