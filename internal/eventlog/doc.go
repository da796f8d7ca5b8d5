// Package eventlog implements cluster event emission: every cluster
// lifecycle action is written asynchronously, through an unbounded
// in-process queue, to a background worker that persists it as a concept
// in the reserved events shard — plus associations linking the event to
// the entity it concerns and to a time-bucket concept — using the very
// same internal/storagenode API the client wire protocol uses ("eating our
// own dogfood").
//
// Emission is best-effort and non-blocking: Emit never waits on the
// persistence worker, and a failure to persist an event is logged, never
// propagated to the caller that triggered it.
package eventlog
