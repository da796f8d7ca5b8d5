package agent

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

// Router builds the HTTP surface master.AgentClient calls: spawn_node,
// stop_node, get_node_status, and list_nodes. Mirrors the path shapes
// master.Master.Router uses for its own node endpoints, since the two
// sides of this RPC relationship are written by the same hand.
func (a *Agent) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/nodes/spawn", a.handleSpawn).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{id}/stop", a.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{id}", a.handleGetNode).Methods(http.MethodGet)
	r.HandleFunc("/nodes", a.handleListNodes).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *Agent) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req clustermeta.SpawnNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := a.SpawnNode(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *Agent) handleStop(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	if err := a.StopNode(r.Context(), nodeID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *Agent) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	info, ok := a.GetNodeStatus(nodeID)
	if !ok {
		http.Error(w, "unknown node", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *Agent) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.ListNodes())
}
