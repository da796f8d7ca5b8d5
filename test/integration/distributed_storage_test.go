// Package integration builds the real sutra-master, sutra-agent, and
// sutra-node binaries and drives a small live cluster through them,
// exercising the engine's end-to-end behaviors: learning is
// idempotent, vector search ranks by distance, cross-shard writes commit
// or abort atomically via 2PC, the cluster registries reflect reality, and
// cluster lifecycle events are persisted back into the graph they
// describe.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sutra-db/sutra/internal/clustermeta"
	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/master"
	"github.com/sutra-db/sutra/internal/wireproto"
)

// Fixed high ports so the harness never collides with a real deployment on
// the same host.
const (
	masterPort      = 19300
	masterEventPort = 19301
	agentPort       = 19302
	nodeAPort       = 19401
	nodeBPort       = 19402

	testVectorDim = 4
)

// cluster is a running master + agent + two storage-node processes, built
// from the module's own cmd/ sources so the test exercises exactly the
// binaries a real deployment runs.
type cluster struct {
	t   *testing.T
	dir string

	master *exec.Cmd
	agent  *exec.Cmd

	httpClient *http.Client
	masterURL  string
}

func buildBinary(t *testing.T, binDir, name string) string {
	t.Helper()
	out := filepath.Join(binDir, name)
	cmd := exec.Command("go", "build", "-o", out, "../../cmd/"+name)
	output, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "build %s: %s", name, output)
	return out
}

func startCluster(t *testing.T) *cluster {
	t.Helper()
	binDir := t.TempDir()
	dataDir := t.TempDir()

	masterBin := buildBinary(t, binDir, "sutra-master")
	agentBin := buildBinary(t, binDir, "sutra-agent")
	nodeBin := buildBinary(t, binDir, "sutra-node")

	env := append(os.Environ(),
		fmt.Sprintf("VECTOR_DIMENSION=%d", testVectorDim),
		fmt.Sprintf("STORAGE_PATH=%s", dataDir),
		fmt.Sprintf("MASTER_ENDPOINT=127.0.0.1:%d", masterPort),
	)

	c := &cluster{
		t: t, dir: dataDir,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		masterURL:  fmt.Sprintf("http://127.0.0.1:%d", masterPort),
	}

	c.master = exec.Command(masterBin,
		"--port", fmt.Sprint(masterPort),
		"--events-port", fmt.Sprint(masterEventPort))
	c.master.Env = env
	c.master.Dir = filepath.Join(dataDir, "master")
	require.NoError(t, os.MkdirAll(c.master.Dir, 0o755))
	c.master.Stdout, c.master.Stderr = logFile(t, "master"), logFile(t, "master")
	require.NoError(t, c.master.Start())

	c.waitHealthy(c.masterURL + "/health")

	c.agent = exec.Command(agentBin,
		"--id", "agent-1",
		"--addr", fmt.Sprintf("127.0.0.1:%d", agentPort),
		"--node-binary", nodeBin)
	c.agent.Env = env
	c.agent.Dir = filepath.Join(dataDir, "agent")
	require.NoError(t, os.MkdirAll(c.agent.Dir, 0o755))
	c.agent.Stdout, c.agent.Stderr = logFile(t, "agent"), logFile(t, "agent")
	require.NoError(t, c.agent.Start())

	c.waitHealthy(fmt.Sprintf("http://127.0.0.1:%d/health", agentPort))

	require.Eventually(t, func() bool {
		agents, err := c.listAgents()
		if err != nil || len(agents) != 1 {
			return false
		}
		return agents[0].Status == clustermeta.AgentHealthy
	}, 10*time.Second, 100*time.Millisecond, "agent never registered with master")

	return c
}

func logFile(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), name+"-*.log")
	require.NoError(t, err)
	return f
}

func (c *cluster) waitHealthy(url string) {
	require.Eventually(c.t, func() bool {
		resp, err := c.httpClient.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond, "never became healthy: "+url)
}

func (c *cluster) stop() {
	if c.agent != nil && c.agent.Process != nil {
		_ = c.agent.Process.Kill()
		_, _ = c.agent.Process.Wait()
	}
	if c.master != nil && c.master.Process != nil {
		_ = c.master.Process.Kill()
		_, _ = c.master.Process.Wait()
	}
}

func (c *cluster) postJSON(path string, body, out any) error {
	return clustermeta.PostJSON(context.Background(), c.masterURL+path, body, out)
}

func (c *cluster) getJSON(path string, out any) error {
	return clustermeta.GetJSON(context.Background(), c.masterURL+path, out)
}

func (c *cluster) listAgents() ([]clustermeta.AgentInfo, error) {
	var out []clustermeta.AgentInfo
	err := c.getJSON("/agents", &out)
	return out, err
}

// spawnShard asks the master to spawn a storage node for shardID on port,
// polling the node registry until the master has recorded its endpoint.
func (c *cluster) spawnShard(nodeID, shardID string, port int) clustermeta.StorageNodeInfo {
	c.t.Helper()
	body := struct {
		AgentID string `json:"agent_id"`
		clustermeta.SpawnNodeRequest
	}{
		AgentID: "agent-1",
		SpawnNodeRequest: clustermeta.SpawnNodeRequest{
			NodeID:      nodeID,
			ShardID:     shardID,
			Port:        port,
			StoragePath: filepath.Join(c.dir, "shards", shardID),
		},
	}
	require.NoError(c.t, c.postJSON("/nodes/spawn", body, nil))

	var info clustermeta.StorageNodeInfo
	require.Eventually(c.t, func() bool {
		var nodes []clustermeta.StorageNodeInfo
		if err := c.getJSON("/nodes", &nodes); err != nil {
			return false
		}
		for _, n := range nodes {
			if n.ID == nodeID && n.Endpoint != "" {
				info = n
				return true
			}
		}
		return false
	}, 10*time.Second, 100*time.Millisecond, "node never appeared in registry with an endpoint")
	return info
}

// dialShard opens a fresh wire client to a spawned node's endpoint,
// retrying briefly since the node binary may still be opening its listener
// the instant the spawn RPC returns.
func dialShard(t *testing.T, endpoint string) *wireproto.Client {
	t.Helper()
	var client *wireproto.Client
	require.Eventually(t, func() bool {
		c, err := wireproto.Dial(endpoint, time.Second)
		if err != nil {
			return false
		}
		client = c
		return true
	}, 10*time.Second, 100*time.Millisecond, "never dialed shard at "+endpoint)
	return client
}

func learnConcept(t *testing.T, client *wireproto.Client, content string, vector []float32) concept.ID {
	t.Helper()
	payload, err := client.Call(context.Background(), wireproto.OpLearnConcept, wireproto.LearnConceptRequest{
		Content: content, Vector: vector,
	})
	require.NoError(t, err)
	var resp wireproto.LearnConceptResponse
	require.NoError(t, msgpack.Unmarshal(payload, &resp))
	id, ok := concept.ParseID(resp.ID)
	require.True(t, ok)
	return id
}

func queryConcept(t *testing.T, client *wireproto.Client, id concept.ID) wireproto.ConceptPayload {
	t.Helper()
	payload, err := client.Call(context.Background(), wireproto.OpQueryConcept, wireproto.QueryConceptRequest{ID: id.String()})
	require.NoError(t, err)
	var resp wireproto.ConceptPayload
	require.NoError(t, msgpack.Unmarshal(payload, &resp))
	return resp
}

// TestDistributedCluster builds the real cluster binaries and drives the
// spec's end-to-end scenarios against a live master/agent/two-node
// topology. Subtests share the same cluster since spawning a fresh one per
// case would dominate the test's wall-clock time with process start-up.
func TestDistributedCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns real processes, skipped under -short")
	}

	c := startCluster(t)
	defer c.stop()

	nodeA := c.spawnShard("node-a", "shard-a", nodeAPort)
	nodeB := c.spawnShard("node-b", "shard-b", nodeBPort)

	clientA := dialShard(t, nodeA.Endpoint)
	defer clientA.Close()
	clientB := dialShard(t, nodeB.Endpoint)
	defer clientB.Close()

	t.Run("LearnIsIdempotentAndStrengthens", func(t *testing.T) {
		// Pointed away from VectorSearchRanksByDistance's query, which runs
		// later on the same shard and expects its own three concepts on top.
		vec := []float32{-1, 0, 0, 0}
		id1 := learnConcept(t, clientA, "the mitochondria is the powerhouse of the cell", vec)
		before := queryConcept(t, clientA, id1)
		require.Equal(t, uint64(1), before.AccessCount)

		id2 := learnConcept(t, clientA, "the mitochondria is the powerhouse of the cell", vec)
		require.Equal(t, id1, id2, "relearning identical content must derive the same id")

		after := queryConcept(t, clientA, id1)
		require.Greater(t, after.AccessCount, before.AccessCount)
		require.GreaterOrEqual(t, after.Strength, before.Strength)
	})

	t.Run("VectorSearchRanksByDistance", func(t *testing.T) {
		near := learnConcept(t, clientA, "a concept nearly aligned with the query", []float32{1, 0, 0, 0})
		mid := learnConcept(t, clientA, "a concept loosely aligned with the query", []float32{0.9, 0.1, 0, 0})
		far := learnConcept(t, clientA, "a concept orthogonal to the query", []float32{0, 1, 0, 0})

		payload, err := clientA.Call(context.Background(), wireproto.OpVectorSearch, wireproto.VectorSearchRequest{
			Query: []float32{1, 0, 0, 0}, K: 3,
		})
		require.NoError(t, err)
		var resp wireproto.VectorSearchResponse
		require.NoError(t, msgpack.Unmarshal(payload, &resp))
		require.GreaterOrEqual(t, len(resp.Results), 3)

		byID := make(map[string]float64, len(resp.Results))
		for _, r := range resp.Results {
			byID[r.ID] = r.Distance
		}
		require.Less(t, byID[near.String()], byID[mid.String()])
		require.Less(t, byID[mid.String()], byID[far.String()])
		require.Equal(t, near.String(), resp.Results[0].ID)
	})

	t.Run("CrossShardTransactionCommits", func(t *testing.T) {
		ops := []master.TxOpJSON{
			{ShardID: "shard-a", Concept: &master.ConceptOpJSON{
				Content: "cross-shard concept on shard-a", Vector: []float32{0, 0, 1, 0},
			}},
			{ShardID: "shard-b", Concept: &master.ConceptOpJSON{
				Content: "cross-shard concept on shard-b", Vector: []float32{0, 0, 0, 1},
			}},
		}
		var result struct {
			TxID      string `json:"tx_id"`
			Committed bool   `json:"committed"`
		}
		require.NoError(t, c.postJSON("/tx", struct {
			Ops []master.TxOpJSON `json:"ops"`
		}{Ops: ops}, &result))
		require.True(t, result.Committed)
		require.NotEmpty(t, result.TxID)

		idA := concept.DeriveID(concept.Tenant{}, "cross-shard concept on shard-a")
		idB := concept.DeriveID(concept.Tenant{}, "cross-shard concept on shard-b")

		gotA := queryConcept(t, clientA, idA)
		require.Equal(t, idA.String(), gotA.ID)
		gotB := queryConcept(t, clientB, idB)
		require.Equal(t, idB.String(), gotB.ID)
	})

	t.Run("CrossShardTransactionAbortsOnDimensionMismatch", func(t *testing.T) {
		ops := []master.TxOpJSON{
			{ShardID: "shard-a", Concept: &master.ConceptOpJSON{
				Content: "aborted concept on shard-a", Vector: []float32{1, 1, 0, 0},
			}},
			{ShardID: "shard-b", Concept: &master.ConceptOpJSON{
				Content: "aborted concept on shard-b", Vector: []float32{1, 1}, // wrong dimension, forces a "no" vote
			}},
		}
		var result struct {
			TxID      string `json:"tx_id"`
			Committed bool   `json:"committed"`
		}
		require.NoError(t, c.postJSON("/tx", struct {
			Ops []master.TxOpJSON `json:"ops"`
		}{Ops: ops}, &result))
		require.False(t, result.Committed)

		idA := concept.DeriveID(concept.Tenant{}, "aborted concept on shard-a")
		_, err := clientA.Call(context.Background(), wireproto.OpQueryConcept, wireproto.QueryConceptRequest{ID: idA.String()})
		require.Error(t, err, "an aborted transaction must leave no trace on any participant")
	})

	t.Run("ClusterRegistryReflectsReality", func(t *testing.T) {
		agents, err := c.listAgents()
		require.NoError(t, err)
		require.Len(t, agents, 1)
		require.Equal(t, "agent-1", agents[0].ID)
		require.Equal(t, clustermeta.AgentHealthy, agents[0].Status)

		var nodes []clustermeta.StorageNodeInfo
		require.NoError(t, c.getJSON("/nodes", &nodes))
		byShard := make(map[string]clustermeta.StorageNodeInfo, len(nodes))
		for _, n := range nodes {
			byShard[n.ShardID] = n
		}
		require.Equal(t, clustermeta.NodeRunning, byShard["shard-a"].Status)
		require.Equal(t, clustermeta.NodeRunning, byShard["shard-b"].Status)
		require.Equal(t, nodeA.Endpoint, byShard["shard-a"].Endpoint)
		require.Equal(t, nodeB.Endpoint, byShard["shard-b"].Endpoint)
	})

	t.Run("ClusterEventsAreSelfHosted", func(t *testing.T) {
		eventsClient := dialShard(t, fmt.Sprintf("127.0.0.1:%d", masterEventPort))
		defer eventsClient.Close()

		// "entity:node-a" carries no time-dependent content, so its concept
		// id is derivable without having observed the actual spawn event.
		entityID := concept.DeriveID(concept.Tenant{}, "entity:node-a")

		var neighbors wireproto.GetNeighborsResponse
		require.Eventually(t, func() bool {
			payload, err := eventsClient.Call(context.Background(), wireproto.OpGetNeighbors, wireproto.GetNeighborsRequest{
				ID: entityID.String(),
			})
			if err != nil {
				return false
			}
			if err := msgpack.Unmarshal(payload, &neighbors); err != nil {
				return false
			}
			return len(neighbors.Neighbors) >= 2
		}, 5*time.Second, 100*time.Millisecond, "spawn lifecycle events never linked to their entity concept")

		for _, nb := range neighbors.Neighbors {
			require.Equal(t, concept.Semantic.String(), nb.Type)
		}
	})
}

// TestStandaloneConfigDefaults sanity-checks that the harness itself does
// not leak engine environment variables into the test process.
func TestStandaloneConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"STORAGE_PATH", "STORAGE_PORT", "VECTOR_DIMENSION", "MASTER_ENDPOINT",
		"EVENT_STORAGE", "WAL_CHECKPOINT_MB", "HNSW_M", "HNSW_EF_CONSTRUCTION", "IDLE_TIMEOUT_SECS",
	} {
		_, present := os.LookupEnv(key)
		require.Falsef(t, present, "test environment should not already define %s", key)
	}
}
