package clustermeta

import "time"

// AgentStatus is the Healthy→Degraded→Offline→Healthy state machine the
// master derives from heartbeat age.
type AgentStatus string

const (
	AgentHealthy  AgentStatus = "healthy"
	AgentDegraded AgentStatus = "degraded"
	AgentOffline  AgentStatus = "offline"
)

// An agent is Degraded after 15s without a heartbeat, Offline after 30s,
// and Healthy again the moment one resumes.
const (
	DegradedAfter = 15 * time.Second
	OfflineAfter  = 30 * time.Second
	HeartbeatEvery = 5 * time.Second
)

// DeriveStatus computes the status an agent's last heartbeat implies, given
// the current time. It never returns AgentHealthy for a stale heartbeat, so
// callers cannot accidentally treat silence as health.
func DeriveStatus(lastHeartbeat, now time.Time) AgentStatus {
	age := now.Sub(lastHeartbeat)
	switch {
	case age >= OfflineAfter:
		return AgentOffline
	case age >= DegradedAfter:
		return AgentDegraded
	default:
		return AgentHealthy
	}
}

// Platform names the pluggable supervision backend an agent uses to run
// storage-node processes.
type Platform string

const (
	PlatformProcess   Platform = "process"
	PlatformContainer Platform = "container"
	PlatformPod       Platform = "pod"
)

// AgentInfo is the master's view of one registered agent.
type AgentInfo struct {
	LastHeartbeat time.Time       `json:"last_heartbeat"`
	ID            string          `json:"id"`
	Addr          string          `json:"addr"` // host:port the master dials for RPCs
	Platform      Platform        `json:"platform"`
	Capabilities  []string        `json:"capabilities,omitempty"`
	Status        AgentStatus     `json:"status"`
}

// NodeStatus is the lifecycle state of a storage-node process as observed
// by its supervising agent.
type NodeStatus string

const (
	NodeStarting NodeStatus = "starting"
	NodeRunning  NodeStatus = "running"
	NodeStopping NodeStatus = "stopping"
	NodeStopped  NodeStatus = "stopped"
	NodeCrashed  NodeStatus = "crashed"
)

// StorageNodeInfo is the master's registry entry for one storage-node
// process: which agent runs it, where it listens, and its observed status.
type StorageNodeInfo struct {
	ID            string     `json:"id"`
	AgentID       string     `json:"agent_id"`
	ShardID       string     `json:"shard_id"`
	Endpoint      string     `json:"endpoint"` // host:port of the C4 wire listener
	StoragePath   string     `json:"storage_path"`
	Status        NodeStatus `json:"status"`
	PID           int        `json:"pid,omitempty"`
	RestartCount  int        `json:"restart_count"`
	MemoryMB      int        `json:"memory_mb,omitempty"`
}

// ShardAssignment records which agent owns a shard primary and which agents
// hold replicas.
type ShardAssignment struct {
	ShardID        string   `json:"shard_id"`
	PrimaryAgentID string   `json:"primary_agent_id"`
	ReplicaAgentIDs []string `json:"replica_agent_ids,omitempty"`
}

// RegisterAgentRequest is POSTed by an agent to the master on startup.
type RegisterAgentRequest struct {
	ID           string   `json:"id"`
	Addr         string   `json:"addr"`
	Platform     Platform `json:"platform"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// HeartbeatRequest is POSTed by an agent every HeartbeatEvery.
type HeartbeatRequest struct {
	AgentID string `json:"agent_id"`
}

// SpawnNodeRequest is the master→agent RPC body for spawn_node.
type SpawnNodeRequest struct {
	NodeID      string `json:"node_id"`
	ShardID     string `json:"shard_id"`
	Port        int    `json:"port"`
	StoragePath string `json:"storage_path"`
	MemoryMB    int    `json:"memory_mb,omitempty"`
}

// StopNodeRequest is the master→agent RPC body for stop_node (10s timeout).
type StopNodeRequest struct {
	NodeID string `json:"node_id"`
}

// RPCTimeouts names the per-RPC deadlines for master→agent calls.
var RPCTimeouts = map[string]time.Duration{
	"spawn_node":      30 * time.Second,
	"stop_node":       10 * time.Second,
	"get_node_status": 5 * time.Second,
	"list_nodes":      5 * time.Second,
}

// RetryBackoffs is the fixed three-attempt backoff schedule for
// master→agent RPCs.
var RetryBackoffs = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
