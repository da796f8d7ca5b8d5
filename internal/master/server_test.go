package master

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

func newTestMaster(t *testing.T) *Master {
	t.Helper()
	m, err := New(nil, nil)
	require.NoError(t, err)
	return m
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMasterRegisterAndListAgents(t *testing.T) {
	m := newTestMaster(t)
	router := m.Router()

	rec := doJSON(t, router, http.MethodPost, "/agents/register", clustermeta.RegisterAgentRequest{
		ID: "agent-1", Addr: "127.0.0.1:8000", Platform: clustermeta.PlatformProcess,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agents []clustermeta.AgentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	require.Len(t, agents, 1)
	require.Equal(t, "agent-1", agents[0].ID)
}

func TestMasterHeartbeatUnknownAgentIs404(t *testing.T) {
	m := newTestMaster(t)
	rec := doJSON(t, m.Router(), http.MethodPost, "/agents/heartbeat", clustermeta.HeartbeatRequest{AgentID: "ghost"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMasterAssignAndListShards(t *testing.T) {
	m := newTestMaster(t)
	router := m.Router()

	rec := doJSON(t, router, http.MethodPost, "/shards/assign", clustermeta.ShardAssignment{ShardID: "shard-0", PrimaryAgentID: "agent-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/shards", nil)
	var shards []clustermeta.ShardAssignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shards))
	require.Len(t, shards, 1)
}
