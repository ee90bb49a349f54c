// Package cron keeps the near-term queue in step with the job store.
//
// The store is the source of truth; the queue only holds runs due within
// the save window. [Reconciler] rebuilds that cache:
//
//   - InitialSync, once before dispatching: recompute every enabled job's
//     next fire time and enqueue those due within one reconcile interval.
//     Disabled jobs are removed from pending.
//   - PeriodicSync, every reconcile interval: offer every enabled job due
//     within the save window. Offer never moves an entry already queued.
//   - ReconcileOne, after each execution: recompute one job from a fresh
//     read and enqueue it, or cancel it when it is gone or disabled.
//   - ReclaimTimeouts, every reclaim interval: return claims whose
//     deadline passed (a crashed worker) to pending.
//
// Next fire times are always computed from the current wall clock, so a
// job that missed several slots while nothing was running fires once, at
// its next future slot.
//
// Expressions use robfig/cron with an optional seconds field:
//
//	"0 3 * * *"        03:00 every day
//	"*/5 * * * * *"    every five seconds
//	"@every 90s"
package cron
