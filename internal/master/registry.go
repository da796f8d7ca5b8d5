package master

import (
	"sync"
	"time"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

// AgentRegistry tracks every agent that has registered with the master,
// keyed by agent id.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*clustermeta.AgentInfo
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]*clustermeta.AgentInfo)}
}

// Register records a new agent or refreshes an existing one's connection
// details, stamping its first heartbeat as now.
func (r *AgentRegistry) Register(req clustermeta.RegisterAgentRequest, now time.Time) *clustermeta.AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := &clustermeta.AgentInfo{
		ID: req.ID, Addr: req.Addr, Platform: req.Platform, Capabilities: req.Capabilities,
		LastHeartbeat: now, Status: clustermeta.AgentHealthy,
	}
	r.agents[req.ID] = info
	return info
}

// Heartbeat refreshes an agent's last-seen time, returning false if the
// agent was never registered.
func (r *AgentRegistry) Heartbeat(agentID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return false
	}
	a.LastHeartbeat = now
	return true
}

// Get returns a copy of the named agent's info.
func (r *AgentRegistry) Get(agentID string) (clustermeta.AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return clustermeta.AgentInfo{}, false
	}
	return *a, true
}

// All returns a snapshot of every registered agent.
func (r *AgentRegistry) All() []clustermeta.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]clustermeta.AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return out
}

// SetStatus updates an agent's derived status in place, returning the
// previous status and whether it actually changed (used by the health
// monitor to decide whether a transition event is due).
func (r *AgentRegistry) SetStatus(agentID string, status clustermeta.AgentStatus) (prev clustermeta.AgentStatus, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return "", false
	}
	prev = a.Status
	a.Status = status
	return prev, prev != status
}

// Remove deletes an agent from the registry (explicit unregistration).
func (r *AgentRegistry) Remove(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}
