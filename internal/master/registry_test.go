package master

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

func TestAgentRegistryRegisterAndHeartbeat(t *testing.T) {
	r := NewAgentRegistry()
	now := time.Now()
	info := r.Register(clustermeta.RegisterAgentRequest{ID: "agent-1", Addr: "127.0.0.1:8000", Platform: clustermeta.PlatformProcess}, now)
	require.Equal(t, clustermeta.AgentHealthy, info.Status)

	later := now.Add(time.Second)
	require.True(t, r.Heartbeat("agent-1", later))
	require.False(t, r.Heartbeat("no-such-agent", later))

	got, ok := r.Get("agent-1")
	require.True(t, ok)
	require.Equal(t, later, got.LastHeartbeat)
}

func TestAgentRegistrySetStatusReportsChange(t *testing.T) {
	r := NewAgentRegistry()
	r.Register(clustermeta.RegisterAgentRequest{ID: "agent-1"}, time.Now())

	prev, changed := r.SetStatus("agent-1", clustermeta.AgentDegraded)
	require.True(t, changed)
	require.Equal(t, clustermeta.AgentHealthy, prev)

	_, changedAgain := r.SetStatus("agent-1", clustermeta.AgentDegraded)
	require.False(t, changedAgain)
}

func TestNodeRegistryByAgent(t *testing.T) {
	r := NewNodeRegistry()
	r.Put(clustermeta.StorageNodeInfo{ID: "node-1", AgentID: "agent-1"})
	r.Put(clustermeta.StorageNodeInfo{ID: "node-2", AgentID: "agent-1"})
	r.Put(clustermeta.StorageNodeInfo{ID: "node-3", AgentID: "agent-2"})

	require.Len(t, r.ByAgent("agent-1"), 2)
	require.Len(t, r.ByAgent("agent-2"), 1)
	require.Empty(t, r.ByAgent("agent-3"))
}

func TestShardMapAssignAndGet(t *testing.T) {
	m := NewShardMap()
	m.Assign(clustermeta.ShardAssignment{ShardID: "shard-0", PrimaryAgentID: "agent-1"})

	got, ok := m.Get("shard-0")
	require.True(t, ok)
	require.Equal(t, "agent-1", got.PrimaryAgentID)

	_, ok = m.Get("shard-missing")
	require.False(t, ok)
}
