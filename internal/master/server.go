package master

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/clustermeta"
	"github.com/sutra-db/sutra/internal/eventlog"
	"github.com/sutra-db/sutra/internal/txn"
)

// Master is the cluster control plane's runtime state: the agent and
// storage-node registries, the shard map, the health monitor, and an
// optional event emitter persisting its own lifecycle as concepts.
// Its HTTP surface is built with gorilla/mux.
type Master struct {
	Agents      *AgentRegistry
	Nodes       *NodeRegistry
	Shards      *ShardMap
	Health      *HealthMonitor
	Emitter     *eventlog.Emitter
	Coordinator *txn.Coordinator

	client AgentClient
	logger *zap.Logger
}

// New wires a Master's registries together. emitter may be nil.
func New(emitter *eventlog.Emitter, logger *zap.Logger) (*Master, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	agents := NewAgentRegistry()
	health, err := NewHealthMonitor(agents, emitter, logger)
	if err != nil {
		return nil, err
	}
	return &Master{
		Agents: agents, Nodes: NewNodeRegistry(), Shards: NewShardMap(),
		Health: health, Emitter: emitter, logger: logger,
		Coordinator: txn.NewCoordinator(txn.NewMemCommitLog(), 0, logger),
	}, nil
}

// Router builds the HTTP control surface: agent registration/heartbeat,
// storage-node spawn/stop/status, shard-map queries, and event ingestion.
func (m *Master) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/agents/register", m.handleRegisterAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents/heartbeat", m.handleHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/agents", m.handleListAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id}", m.handleGetAgent).Methods(http.MethodGet)

	r.HandleFunc("/nodes/spawn", m.handleSpawnNode).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{id}/stop", m.handleStopNode).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{id}", m.handleGetNode).Methods(http.MethodGet)
	r.HandleFunc("/nodes", m.handleListNodes).Methods(http.MethodGet)

	r.HandleFunc("/shards", m.handleListShards).Methods(http.MethodGet)
	r.HandleFunc("/shards/assign", m.handleAssignShard).Methods(http.MethodPost)

	r.HandleFunc("/tx", m.handleBeginTx).Methods(http.MethodPost)

	r.HandleFunc("/events", m.handleEvent).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (m *Master) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req clustermeta.RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info := m.Agents.Register(req, time.Now())
	if m.Emitter != nil {
		m.Emitter.Emit(eventlog.New(eventlog.AgentRegistered, req.ID, time.Now(), map[string]string{"addr": req.Addr}))
	}
	writeJSON(w, http.StatusOK, info)
}

func (m *Master) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req clustermeta.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !m.Agents.Heartbeat(req.AgentID, time.Now()) {
		http.Error(w, "unknown agent", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *Master) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Agents.All())
}

func (m *Master) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, ok := m.Agents.Get(id)
	if !ok {
		http.Error(w, "unknown agent", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (m *Master) handleSpawnNode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID string `json:"agent_id"`
		clustermeta.SpawnNodeRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	agent, ok := m.Agents.Get(body.AgentID)
	if !ok {
		http.Error(w, "unknown agent", http.StatusNotFound)
		return
	}
	if m.Emitter != nil {
		m.Emitter.Emit(eventlog.New(eventlog.SpawnRequested, body.NodeID, time.Now(), map[string]string{"agent_id": body.AgentID}))
	}
	info, err := m.client.SpawnNode(r.Context(), agent.Addr, body.SpawnNodeRequest)
	if err != nil {
		if m.Emitter != nil {
			m.Emitter.Emit(eventlog.New(eventlog.SpawnFailed, body.NodeID, time.Now(), map[string]string{"error": err.Error()}))
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	m.Nodes.Put(info)
	if m.Emitter != nil {
		m.Emitter.Emit(eventlog.New(eventlog.SpawnSucceeded, body.NodeID, time.Now(), map[string]string{"agent_id": body.AgentID}))
	}
	w.WriteHeader(http.StatusOK)
}

func (m *Master) handleStopNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	node, ok := m.Nodes.Get(nodeID)
	if !ok {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}
	agent, ok := m.Agents.Get(node.AgentID)
	if !ok {
		http.Error(w, "unknown agent", http.StatusNotFound)
		return
	}
	if m.Emitter != nil {
		m.Emitter.Emit(eventlog.New(eventlog.StopRequested, nodeID, time.Now(), nil))
	}
	if err := m.client.StopNode(r.Context(), agent.Addr, clustermeta.StopNodeRequest{NodeID: nodeID}); err != nil {
		if m.Emitter != nil {
			m.Emitter.Emit(eventlog.New(eventlog.StopFailed, nodeID, time.Now(), map[string]string{"error": err.Error()}))
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	m.Nodes.UpdateStatus(nodeID, clustermeta.NodeStopped)
	if m.Emitter != nil {
		m.Emitter.Emit(eventlog.New(eventlog.StopSucceeded, nodeID, time.Now(), nil))
	}
	w.WriteHeader(http.StatusOK)
}

func (m *Master) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, ok := m.Nodes.Get(id)
	if !ok {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (m *Master) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Nodes.All())
}

func (m *Master) handleListShards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Shards.All())
}

func (m *Master) handleAssignShard(w http.ResponseWriter, r *http.Request) {
	var req clustermeta.ShardAssignment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.Shards.Assign(req)
	w.WriteHeader(http.StatusOK)
}

// handleEvent lets an agent (which has no local events shard of its own)
// forward a lifecycle event for the master to persist through its own
// emitter, keeping "eating our own dogfood" true cluster-wide rather than
// only for master-originated events.
func (m *Master) handleEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type     eventlog.Type     `json:"type"`
		EntityID string            `json:"entity_id"`
		Details  map[string]string `json:"details,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if m.Emitter != nil {
		m.Emitter.Emit(eventlog.New(body.Type, body.EntityID, time.Now(), body.Details))
	}
	w.WriteHeader(http.StatusAccepted)
}
