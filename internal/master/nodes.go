package master

import (
	"sync"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

// NodeRegistry is the master's record of every storage-node process:
// which agent runs it, where its C4 listener is, and its last-observed
// lifecycle status. Same map+RWMutex shape as AgentRegistry.
type NodeRegistry struct {
	mu    sync.RWMutex
	nodes map[string]*clustermeta.StorageNodeInfo
}

func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{nodes: make(map[string]*clustermeta.StorageNodeInfo)}
}

// Put inserts or replaces a storage node's registry entry.
func (r *NodeRegistry) Put(info clustermeta.StorageNodeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[info.ID] = &info
}

// UpdateStatus sets a node's observed status, a no-op if the node is
// unknown (it may have been spawned by an agent the master hasn't yet
// recorded a response for).
func (r *NodeRegistry) UpdateStatus(nodeID string, status clustermeta.NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[nodeID]; ok {
		n.Status = status
	}
}

// Get returns a copy of the named node's registry entry.
func (r *NodeRegistry) Get(nodeID string) (clustermeta.StorageNodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeID]
	if !ok {
		return clustermeta.StorageNodeInfo{}, false
	}
	return *n, true
}

// All returns a snapshot of every known storage node.
func (r *NodeRegistry) All() []clustermeta.StorageNodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]clustermeta.StorageNodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	return out
}

// ByAgent returns every node an agent is supervising, so the master can
// reassign or re-spawn them after that agent goes offline.
func (r *NodeRegistry) ByAgent(agentID string) []clustermeta.StorageNodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []clustermeta.StorageNodeInfo
	for _, n := range r.nodes {
		if n.AgentID == agentID {
			out = append(out, *n)
		}
	}
	return out
}

// ByShard returns the first running node found serving shardID, the
// endpoint a cross-shard transaction participant dials. Storage nodes are
// not yet replicated in this build, so "first" is also "only".
func (r *NodeRegistry) ByShard(shardID string) (clustermeta.StorageNodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.ShardID == shardID && n.Status == clustermeta.NodeRunning {
			return *n, true
		}
	}
	return clustermeta.StorageNodeInfo{}, false
}

// Remove deletes a node's registry entry.
func (r *NodeRegistry) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, nodeID)
}

// ShardMap records which agent owns each shard's primary and which
// agents hold its replicas (a shard's data lives on whichever
// storage-node process its owning agent supervises).
type ShardMap struct {
	mu     sync.RWMutex
	shards map[string]*clustermeta.ShardAssignment
}

func NewShardMap() *ShardMap {
	return &ShardMap{shards: make(map[string]*clustermeta.ShardAssignment)}
}

// Assign records shardID's primary (and optional replica) agents.
func (m *ShardMap) Assign(a clustermeta.ShardAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shards[a.ShardID] = &a
}

// Get returns the assignment for shardID.
func (m *ShardMap) Get(shardID string) (clustermeta.ShardAssignment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.shards[shardID]
	if !ok {
		return clustermeta.ShardAssignment{}, false
	}
	return *a, true
}

// All returns every shard assignment the master knows about.
func (m *ShardMap) All() []clustermeta.ShardAssignment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]clustermeta.ShardAssignment, 0, len(m.shards))
	for _, a := range m.shards {
		out = append(out, *a)
	}
	return out
}
