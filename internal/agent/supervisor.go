package agent

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/clustermeta"
	"github.com/sutra-db/sutra/internal/eventlog"
)

// restartBaseDelay and restartMaxDelay bound the exponential backoff applied
// between a crashed node's death and its restart attempt.
const (
	restartBaseDelay = time.Second
	restartMaxDelay  = 60 * time.Second
)

// restartBackoff doubles restartBaseDelay per attempt, capped at
// restartMaxDelay, for attempt counts starting at 0.
func restartBackoff(attempt int) time.Duration {
	d := restartBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= restartMaxDelay {
			return restartMaxDelay
		}
	}
	return d
}

// trackedNode pairs a node's last-known registry view with the request
// that spawned it, so a crash-restart can replay the same parameters.
type trackedNode struct {
	info     clustermeta.StorageNodeInfo
	req      clustermeta.SpawnNodeRequest
	restarts int
	stopped  bool
}

// crashWaiter lets a Platform opt into crash detection: wait blocks until
// the node process backing nodeID exits, returning true unless Stop was
// called first (a clean shutdown is not a crash).
type crashWaiter interface {
	wait(nodeID string) bool
}

// Agent supervises storage-node processes on one host on behalf of a
// master: spawning, stopping, and restarting them on crash, and reporting
// lifecycle events back since agents carry no local events shard of
// their own.
type Agent struct {
	ID       string
	Addr     string
	Platform Platform

	reporter EventReporter
	logger   *zap.Logger

	mu    sync.RWMutex
	nodes map[string]*trackedNode
}

// New builds an Agent that supervises processes through platform and
// forwards lifecycle events to masterAddr's /events endpoint.
func New(id, addr, masterAddr string, platform Platform, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		ID: id, Addr: addr, Platform: platform,
		reporter: EventReporter{MasterAddr: masterAddr},
		logger:   logger,
		nodes:    make(map[string]*trackedNode),
	}
}

// SpawnNode starts a storage-node process and, if the backing platform
// supports crash detection, begins supervising it for unplanned exits.
func (a *Agent) SpawnNode(ctx context.Context, req clustermeta.SpawnNodeRequest) (clustermeta.StorageNodeInfo, error) {
	pid, err := a.Platform.Start(req)
	if err != nil {
		return clustermeta.StorageNodeInfo{}, err
	}

	info := clustermeta.StorageNodeInfo{
		ID: req.NodeID, AgentID: a.ID, ShardID: req.ShardID,
		Endpoint:    a.nodeEndpoint(req.Port),
		StoragePath: req.StoragePath, Status: clustermeta.NodeRunning, PID: pid,
	}
	tn := &trackedNode{info: info, req: req}

	a.mu.Lock()
	a.nodes[req.NodeID] = tn
	a.mu.Unlock()

	if cw, ok := a.Platform.(crashWaiter); ok {
		go a.superviseCrashes(req.NodeID, cw)
	}
	return info, nil
}

// nodeEndpoint builds the host:port a storage node spawned on this agent's
// host listens on, reusing this agent's own host since a node process
// always runs alongside its supervising agent.
func (a *Agent) nodeEndpoint(port int) string {
	host, _, err := net.SplitHostPort(a.Addr)
	if err != nil {
		host = a.Addr
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// StopNode marks nodeID as deliberately stopped (so a concurrent crash
// watcher does not treat the exit as a crash) and signals the platform to
// stop it.
func (a *Agent) StopNode(ctx context.Context, nodeID string) error {
	a.mu.Lock()
	tn, ok := a.nodes[nodeID]
	if ok {
		tn.stopped = true
		tn.info.Status = clustermeta.NodeStopping
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	if err := a.Platform.Stop(nodeID, tn.info.PID); err != nil {
		return err
	}
	a.mu.Lock()
	tn.info.Status = clustermeta.NodeStopped
	a.mu.Unlock()
	return nil
}

// GetNodeStatus returns the last-known registry view for nodeID.
func (a *Agent) GetNodeStatus(nodeID string) (clustermeta.StorageNodeInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tn, ok := a.nodes[nodeID]
	if !ok {
		return clustermeta.StorageNodeInfo{}, false
	}
	return tn.info, true
}

// ListNodes returns every node this agent currently tracks.
func (a *Agent) ListNodes() []clustermeta.StorageNodeInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]clustermeta.StorageNodeInfo, 0, len(a.nodes))
	for _, tn := range a.nodes {
		out = append(out, tn.info)
	}
	return out
}

// superviseCrashes waits for nodeID's process to exit; an unplanned exit is
// reported as a crash and retried with exponential backoff, replaying the
// original spawn request, until StopNode marks the node deliberately
// stopped.
func (a *Agent) superviseCrashes(nodeID string, cw crashWaiter) {
	for {
		crashed := cw.wait(nodeID)

		a.mu.Lock()
		tn, ok := a.nodes[nodeID]
		if !ok || tn.stopped {
			a.mu.Unlock()
			return
		}
		if !crashed {
			a.mu.Unlock()
			return
		}
		tn.info.Status = clustermeta.NodeCrashed
		tn.restarts++
		restarts := tn.restarts
		req := tn.req
		a.mu.Unlock()

		a.reporter.Report(context.Background(), eventlog.NodeCrashed, nodeID, map[string]string{
			"agent_id": a.ID,
		})

		delay := restartBackoff(restarts - 1)
		a.logger.Info("node crashed, scheduling restart",
			zap.String("node_id", nodeID), zap.Int("attempt", restarts), zap.Duration("delay", delay))
		time.Sleep(delay)

		a.mu.Lock()
		tn, ok = a.nodes[nodeID]
		if !ok || tn.stopped {
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		pid, err := a.Platform.Start(req)
		if err != nil {
			a.logger.Error("node restart failed", zap.String("node_id", nodeID), zap.Error(err))
			continue
		}

		a.mu.Lock()
		tn, ok = a.nodes[nodeID]
		if !ok {
			a.mu.Unlock()
			return
		}
		tn.info.Status = clustermeta.NodeRunning
		tn.info.PID = pid
		tn.info.RestartCount = restarts
		a.mu.Unlock()

		a.reporter.Report(context.Background(), eventlog.NodeRestarted, nodeID, map[string]string{
			"agent_id": a.ID, "attempt": strconv.Itoa(restarts),
		})
	}
}
