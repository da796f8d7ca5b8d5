package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

// Heartbeater registers an agent with the master on startup and then posts
// a heartbeat every clustermeta.HeartbeatEvery, the interval the master's
// health monitor expects. Runs on the same go-co-op/gocron/v2 scheduler
// master.HealthMonitor uses for its poll loop, so both halves of the
// heartbeat relationship share one scheduling idiom.
type Heartbeater struct {
	Agent      *Agent
	MasterAddr string
	Platform   clustermeta.Platform
	Capabilities []string

	logger *zap.Logger
	sched  gocron.Scheduler
}

// NewHeartbeater builds a Heartbeater for agent, targeting masterAddr.
func NewHeartbeater(agent *Agent, masterAddr string, platform clustermeta.Platform, capabilities []string, logger *zap.Logger) (*Heartbeater, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("agent: new scheduler: %w", err)
	}
	return &Heartbeater{
		Agent: agent, MasterAddr: masterAddr, Platform: platform,
		Capabilities: capabilities, logger: logger, sched: sched,
	}, nil
}

// Register announces the agent to the master. Callers should do this once
// before Start.
func (h *Heartbeater) Register(ctx context.Context) error {
	req := clustermeta.RegisterAgentRequest{
		ID: h.Agent.ID, Addr: h.Agent.Addr, Platform: h.Platform, Capabilities: h.Capabilities,
	}
	return clustermeta.PostJSON(ctx, "http://"+h.MasterAddr+"/agents/register", req, nil)
}

func (h *Heartbeater) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := clustermeta.HeartbeatRequest{AgentID: h.Agent.ID}
	if err := clustermeta.PostJSON(ctx, "http://"+h.MasterAddr+"/agents/heartbeat", req, nil); err != nil {
		h.logger.Warn("heartbeat failed, re-registering", zap.Error(err))
		if err := h.Register(ctx); err != nil {
			h.logger.Warn("re-registration failed", zap.Error(err))
		}
	}
}

// Start begins the periodic heartbeat loop. Call Register first.
func (h *Heartbeater) Start() error {
	_, err := h.sched.NewJob(
		gocron.DurationJob(clustermeta.HeartbeatEvery),
		gocron.NewTask(h.beat),
	)
	if err != nil {
		return fmt.Errorf("agent: schedule heartbeat: %w", err)
	}
	h.sched.Start()
	return nil
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() error {
	return h.sched.Shutdown()
}
