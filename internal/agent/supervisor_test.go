package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

// fakeCrashPlatform is a Platform + crashWaiter test double whose exit
// channel the test controls directly, so a crash can be triggered
// deterministically instead of racing a real process.
type fakeCrashPlatform struct {
	mu      sync.Mutex
	starts  int
	exit    map[string]chan bool
}

func newFakeCrashPlatform() *fakeCrashPlatform {
	return &fakeCrashPlatform{exit: make(map[string]chan bool)}
}

func (f *fakeCrashPlatform) Start(req clustermeta.SpawnNodeRequest) (int, error) {
	f.mu.Lock()
	f.starts++
	if _, ok := f.exit[req.NodeID]; !ok {
		f.exit[req.NodeID] = make(chan bool, 1)
	}
	pid := 1000 + f.starts
	f.mu.Unlock()
	return pid, nil
}

func (f *fakeCrashPlatform) Stop(nodeID string, _ int) error {
	f.mu.Lock()
	ch := f.exit[nodeID]
	f.mu.Unlock()
	if ch != nil {
		ch <- false
	}
	return nil
}

func (f *fakeCrashPlatform) Status(string, int) (clustermeta.NodeStatus, error) {
	return clustermeta.NodeRunning, nil
}

func (f *fakeCrashPlatform) wait(nodeID string) bool {
	f.mu.Lock()
	ch := f.exit[nodeID]
	f.mu.Unlock()
	return <-ch
}

func (f *fakeCrashPlatform) crash(nodeID string) {
	f.mu.Lock()
	ch := f.exit[nodeID]
	f.mu.Unlock()
	ch <- true
}

func TestAgentSpawnNodeTracksInfo(t *testing.T) {
	plat := newFakeCrashPlatform()
	a := New("agent-1", "127.0.0.1:9000", "", plat, nil)

	info, err := a.SpawnNode(context.Background(), clustermeta.SpawnNodeRequest{NodeID: "node-1", ShardID: "shard-0", Port: 50100})
	require.NoError(t, err)
	require.Equal(t, clustermeta.NodeRunning, info.Status)
	require.Equal(t, "127.0.0.1:50100", info.Endpoint)

	got, ok := a.GetNodeStatus("node-1")
	require.True(t, ok)
	require.Equal(t, "node-1", got.ID)
	require.Len(t, a.ListNodes(), 1)
}

func TestAgentStopNodeIsNotTreatedAsCrash(t *testing.T) {
	plat := newFakeCrashPlatform()
	a := New("agent-1", "127.0.0.1:9000", "", plat, nil)

	_, err := a.SpawnNode(context.Background(), clustermeta.SpawnNodeRequest{NodeID: "node-1"})
	require.NoError(t, err)

	require.NoError(t, a.StopNode(context.Background(), "node-1"))

	require.Eventually(t, func() bool {
		info, _ := a.GetNodeStatus("node-1")
		return info.Status == clustermeta.NodeStopped
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, 1, plat.starts)
}

func TestAgentRestartsOnCrashAndReportsEvents(t *testing.T) {
	var events []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body eventPostBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		events = append(events, string(body.Type))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	plat := newFakeCrashPlatform()
	a := New("agent-1", "127.0.0.1:9000", srv.Listener.Addr().String(), plat, nil)

	_, err := a.SpawnNode(context.Background(), clustermeta.SpawnNodeRequest{NodeID: "node-1"})
	require.NoError(t, err)

	plat.crash("node-1")

	require.Eventually(t, func() bool {
		info, _ := a.GetNodeStatus("node-1")
		return info.Status == clustermeta.NodeRunning && info.RestartCount == 1
	}, 3*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2
	}, time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, events, "node_crashed")
	require.Contains(t, events, "node_restarted")
}
