package master

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

func TestAgentClientSpawnAndStopNode(t *testing.T) {
	var spawned, stopped bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nodes/spawn":
			spawned = true
			_ = json.NewEncoder(w).Encode(clustermeta.StorageNodeInfo{
				ID: "node-1", Endpoint: "127.0.0.1:50100", Status: clustermeta.NodeRunning,
			})
		case "/nodes/node-1/stop":
			stopped = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var c AgentClient
	addr := srv.Listener.Addr().String()

	info, err := c.SpawnNode(context.Background(), addr, clustermeta.SpawnNodeRequest{NodeID: "node-1"})
	require.NoError(t, err)
	require.True(t, spawned)
	require.Equal(t, "127.0.0.1:50100", info.Endpoint)

	require.NoError(t, c.StopNode(context.Background(), addr, clustermeta.StopNodeRequest{NodeID: "node-1"}))
	require.True(t, stopped)
}

func TestAgentClientListNodesRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]clustermeta.StorageNodeInfo{{ID: "node-1"}})
	}))
	defer srv.Close()

	var c AgentClient
	nodes, err := c.ListNodes(context.Background(), srv.Listener.Addr().String())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.GreaterOrEqual(t, attempts, 2)
}
