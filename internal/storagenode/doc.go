// Package storagenode implements the per-shard operation dispatcher:
// learn_concept, learn_association,
// learn_batch, query_concept, get_neighbors, vector_search, find_path,
// stats, and the prepare/commit/abort transaction entry points.
// A Node owns exactly one shard — one segment + WAL + index triple,
// wired from internal/store, internal/graphidx, and internal/vectorindex.
package storagenode
