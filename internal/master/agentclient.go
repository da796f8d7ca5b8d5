package master

import (
	"context"
	"fmt"
	"time"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

// AgentClient issues the master→agent RPCs
// (spawn_node/stop_node/get_node_status/list_nodes) against an agent's
// HTTP control surface, retrying each on the fixed
// clustermeta.RetryBackoffs schedule before giving up.
type AgentClient struct{}

// call retries fn up to len(clustermeta.RetryBackoffs)+1 times, sleeping
// the matching backoff between attempts. It gives up early if ctx is done.
func call(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= len(clustermeta.RetryBackoffs) {
			return fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}
		select {
		case <-time.After(clustermeta.RetryBackoffs[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SpawnNode asks agentAddr to start a storage-node process, returning the
// agent's view of the node (notably its Endpoint and PID) on success.
func (AgentClient) SpawnNode(ctx context.Context, agentAddr string, req clustermeta.SpawnNodeRequest) (clustermeta.StorageNodeInfo, error) {
	ctx, cancel := clustermeta.WithRPCTimeout(ctx, "spawn_node")
	defer cancel()
	var out clustermeta.StorageNodeInfo
	err := call(ctx, func() error {
		return clustermeta.PostJSON(ctx, "http://"+agentAddr+"/nodes/spawn", req, &out)
	})
	return out, err
}

// StopNode asks agentAddr to stop a storage-node process.
func (AgentClient) StopNode(ctx context.Context, agentAddr string, req clustermeta.StopNodeRequest) error {
	ctx, cancel := clustermeta.WithRPCTimeout(ctx, "stop_node")
	defer cancel()
	return call(ctx, func() error {
		return clustermeta.PostJSON(ctx, "http://"+agentAddr+"/nodes/"+req.NodeID+"/stop", req, nil)
	})
}

// GetNodeStatus fetches one node's status from its supervising agent.
func (AgentClient) GetNodeStatus(ctx context.Context, agentAddr, nodeID string) (clustermeta.StorageNodeInfo, error) {
	ctx, cancel := clustermeta.WithRPCTimeout(ctx, "get_node_status")
	defer cancel()
	var out clustermeta.StorageNodeInfo
	err := call(ctx, func() error {
		return clustermeta.GetJSON(ctx, "http://"+agentAddr+"/nodes/"+nodeID, &out)
	})
	return out, err
}

// ListNodes fetches every node an agent currently supervises.
func (AgentClient) ListNodes(ctx context.Context, agentAddr string) ([]clustermeta.StorageNodeInfo, error) {
	ctx, cancel := clustermeta.WithRPCTimeout(ctx, "list_nodes")
	defer cancel()
	var out []clustermeta.StorageNodeInfo
	err := call(ctx, func() error {
		return clustermeta.GetJSON(ctx, "http://"+agentAddr+"/nodes", &out)
	})
	return out, err
}
