// Package txn implements the two-phase commit coordinator and participant
// plumbing for cross-shard writes: a coordinator
// (the master, or a designated coordinator node) assigns a time-ordered tx
// id, sends prepare to every participant, and commits or aborts depending
// on the vote, with a fixed 10s per-peer prepare timeout (a timeout counts
// as a "no" vote).
//
// Participant is implemented by internal/storagenode.Node (via
// LocalParticipant) on top of the prepare/commit/abort state machine in
// internal/store/txn.go. Single-shard learns do not go through it; they
// append their WAL records directly.
package txn
