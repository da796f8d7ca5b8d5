// Package agent implements the per-host supervisor half of the cluster
// plane (C5): registering with the master, sending heartbeats, and
// starting/stopping/watching storage-node processes through a pluggable
// Platform backend. Only the process backend is implemented; container
// and pod are named and stubbed for deployments that schedule nodes
// through an external orchestrator.
package agent
