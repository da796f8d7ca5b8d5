package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

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

func TestAgentRouterSpawnStopAndList(t *testing.T) {
	plat := newFakeCrashPlatform()
	a := New("agent-1", "127.0.0.1:9000", "", plat, nil)
	router := a.Router()

	rec := doJSON(t, router, http.MethodPost, "/nodes/spawn", clustermeta.SpawnNodeRequest{NodeID: "node-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nodes []clustermeta.StorageNodeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)

	rec = doJSON(t, router, http.MethodGet, "/nodes/node-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/nodes/node-1/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAgentRouterGetUnknownNodeIs404(t *testing.T) {
	plat := newFakeCrashPlatform()
	a := New("agent-1", "127.0.0.1:9000", "", plat, nil)
	rec := doJSON(t, a.Router(), http.MethodGet, "/nodes/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
