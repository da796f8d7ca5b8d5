package agent

import (
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/sutra-db/sutra/internal/clustermeta"
	"github.com/sutra-db/sutra/internal/sutraerr"
)

// Platform is the pluggable supervision backend an agent uses to start,
// stop, and poll storage-node processes. Only ProcessPlatform is
// implemented; container and pod are named in clustermeta.Platform for
// wire/registration compatibility but carry no runtime here, per the
// deployment-descriptor Non-goal.
type Platform interface {
	Start(req clustermeta.SpawnNodeRequest) (pid int, err error)
	Stop(nodeID string, pid int) error
	Status(nodeID string, pid int) (clustermeta.NodeStatus, error)
}

// ProcessPlatform runs each storage node as a child process of the agent,
// the node binary being a separate executable reached by path.
type ProcessPlatform struct {
	mu    sync.Mutex
	procs map[string]*exec.Cmd

	// NodeBinary is the path to the storage-node executable. Defaults to
	// "sutra-node" resolved via $PATH when empty.
	NodeBinary string
}

// NewProcessPlatform builds a ProcessPlatform that launches nodeBinary (or
// "sutra-node" on $PATH if empty) for every spawn request.
func NewProcessPlatform(nodeBinary string) *ProcessPlatform {
	return &ProcessPlatform{procs: make(map[string]*exec.Cmd), NodeBinary: nodeBinary}
}

func (p *ProcessPlatform) binary() string {
	if p.NodeBinary != "" {
		return p.NodeBinary
	}
	return "sutra-node"
}

// Start launches the node binary with flags describing the shard, listen
// port, and storage path, and tracks the resulting process by node id.
func (p *ProcessPlatform) Start(req clustermeta.SpawnNodeRequest) (int, error) {
	cmd := exec.Command(p.binary(),
		"--shard", req.ShardID,
		"--port", strconv.Itoa(req.Port),
		"--storage-path", req.StoragePath,
	)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("agent: start node %s: %w", req.NodeID, err)
	}

	p.mu.Lock()
	p.procs[req.NodeID] = cmd
	p.mu.Unlock()

	return cmd.Process.Pid, nil
}

// Stop sends SIGTERM to the tracked process for nodeID and forgets it.
func (p *ProcessPlatform) Stop(nodeID string, _ int) error {
	p.mu.Lock()
	cmd, ok := p.procs[nodeID]
	if ok {
		delete(p.procs, nodeID)
	}
	p.mu.Unlock()

	if !ok {
		return sutraerr.NodeNotFound(nodeID)
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

// Status reports Running if the tracked pid still answers signal 0,
// Crashed if it is tracked but gone, or Stopped if it was never started
// (or already stopped) under this platform instance.
func (p *ProcessPlatform) Status(nodeID string, _ int) (clustermeta.NodeStatus, error) {
	p.mu.Lock()
	cmd, ok := p.procs[nodeID]
	p.mu.Unlock()
	if !ok {
		return clustermeta.NodeStopped, nil
	}
	if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
		return clustermeta.NodeCrashed, nil
	}
	return clustermeta.NodeRunning, nil
}

// wait blocks until the process backing nodeID exits and reports whether it
// was still tracked (false means Stop already removed it, i.e. a clean,
// requested shutdown rather than a crash).
func (p *ProcessPlatform) wait(nodeID string) (crashed bool) {
	p.mu.Lock()
	cmd, ok := p.procs[nodeID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	_ = cmd.Wait()

	p.mu.Lock()
	_, stillTracked := p.procs[nodeID]
	if stillTracked {
		delete(p.procs, nodeID)
	}
	p.mu.Unlock()
	return stillTracked
}

// unimplementedPlatform backs container and pod platforms: named so agents
// can register under those clustermeta.Platform values, but every
// operation fails until a real backend is written.
type unimplementedPlatform struct{ kind clustermeta.Platform }

func (u unimplementedPlatform) Start(clustermeta.SpawnNodeRequest) (int, error) {
	return 0, fmt.Errorf("agent: platform %q not implemented", u.kind)
}

func (u unimplementedPlatform) Stop(string, int) error {
	return fmt.Errorf("agent: platform %q not implemented", u.kind)
}

func (u unimplementedPlatform) Status(string, int) (clustermeta.NodeStatus, error) {
	return "", fmt.Errorf("agent: platform %q not implemented", u.kind)
}
