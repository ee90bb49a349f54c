// Package queue defines the near-term queue contract and the claim gate.
//
// The queue holds two sorted sets keyed by job id. pending is scored by due
// time and processing by claim deadline, both in epoch milliseconds:
//
//	absent ──Enqueue/Offer──▶ pending ──Claim──▶ processing ──Ack──▶ absent
//	          pending ──CancelPending──▶ absent
//	          processing ──Requeue/ReclaimExpired──▶ pending
//
// Backends live in store/redis (Lua scripts), store/postgres
// (FOR UPDATE SKIP LOCKED) and store/memory. Package queuetest holds the
// behavioural suite every backend runs.
//
// [Gate] combines a token-bucket rate limit (golang.org/x/time/rate) with
// an in-flight cap and is consulted before each claim:
//
//	if gate.Acquire() {
//	    jobID, ok, err := q.Claim(ctx, time.Now(), timeout)
//	    if !ok { gate.Release() }
//	}
package queue
