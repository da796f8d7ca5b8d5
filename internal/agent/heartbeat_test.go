package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

func TestHeartbeaterRegisterPostsExpectedBody(t *testing.T) {
	var gotPath string
	var req clustermeta.RegisterAgentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	plat := newFakeCrashPlatform()
	a := New("agent-1", "127.0.0.1:9001", srv.Listener.Addr().String(), plat, nil)
	h, err := NewHeartbeater(a, srv.Listener.Addr().String(), clustermeta.PlatformProcess, []string{"vector-search"}, nil)
	require.NoError(t, err)

	require.NoError(t, h.Register(context.Background()))
	require.Equal(t, "/agents/register", gotPath)
	require.Equal(t, "agent-1", req.ID)
	require.Equal(t, clustermeta.PlatformProcess, req.Platform)
}

func TestHeartbeaterBeatPostsHeartbeat(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/agents/heartbeat" {
			atomic.AddInt32(&hits, 1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	plat := newFakeCrashPlatform()
	a := New("agent-1", "127.0.0.1:9001", srv.Listener.Addr().String(), plat, nil)
	h, err := NewHeartbeater(a, srv.Listener.Addr().String(), clustermeta.PlatformProcess, nil, nil)
	require.NoError(t, err)

	h.beat()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) >= 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Stop())
}
