// Package master implements the cluster control plane (C5): the agent
// registry, the storage-node registry, the shard map, and the
// Healthy→Degraded→Offline health monitor, exposed over HTTP for agents
// and operators to call. It also drives the 2PC coordinator and the
// event emitter that make the master self-host its own lifecycle state.
package master
