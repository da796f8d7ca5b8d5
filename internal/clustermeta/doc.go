// Package clustermeta defines the wire-format-agnostic value types shared
// across the cluster plane (C5): agent records, shard assignments, and
// storage-node status. internal/master and internal/agent both depend on
// this package rather than on each other, so the HTTP RPC surface between
// them can be typed without an import cycle.
package clustermeta
