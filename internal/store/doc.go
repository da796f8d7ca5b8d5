// Package store ties together internal/segment, internal/walog,
// internal/graphidx, and internal/vectorindex into the single-shard
// on-disk store: checkpoint (swap WAL,
// serialize graph to a new segment, fsync, atomic rename, delete prior
// WAL) and recovery (open latest segment or create an empty one, replay
// the WAL, stop at the first invalid record, run a post-recovery
// invariant check).
package store
