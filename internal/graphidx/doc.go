// Package graphidx implements the in-memory graph index: the concept
// map, content index, association map, and
// a symmetric neighbor index giving O(1) access to a concept's associations
// in either direction.
//
// The index is rebuilt from a segment's concept/association tables plus any
// WAL tail at shard startup; it never itself owns
// durability. Every mutation here is mirrored by a corresponding append to
// the shard's WAL by the caller (internal/storagenode) before it is applied
// here, so the two stay consistent across a crash.
package graphidx
