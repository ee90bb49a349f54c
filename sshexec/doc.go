// Package sshexec runs shell commands on remote hosts over SSH.
//
// Every execution passes through three stages, each with its own timeout:
// connect (TCP dial), authenticate (handshake and password login) and
// execute (one session running the command). A failing stage returns a
// *StageError naming the stage, the failure kind and the host. Combined
// stdout and stderr is captured up to a cap; output beyond it fails the
// execution with ErrOutputTooLarge.
//
// Orchestrator.Run targets one host. Orchestrator.RunFleet fans a command
// out over every member of a group and returns a Stream of per-host
// records in completion order, which can be written as NDJSON.
//
// Host keys are not verified.
package sshexec
