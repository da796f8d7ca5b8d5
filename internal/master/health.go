package master

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/clustermeta"
	"github.com/sutra-db/sutra/internal/eventlog"
)

// pollInterval is how often the health monitor recomputes every agent's
// status from its last heartbeat. It must be well under DegradedAfter so
// a transition is never missed by more than one tick.
const pollInterval = 5 * time.Second

// HealthMonitor periodically re-derives every registered agent's status
// from clustermeta.DeriveStatus and emits a lifecycle event on each
// transition. Scheduled through go-co-op/gocron/v2, as is the agent's
// heartbeat loop.
type HealthMonitor struct {
	agents   *AgentRegistry
	emitter  *eventlog.Emitter
	logger   *zap.Logger
	sched    gocron.Scheduler
}

// NewHealthMonitor builds a monitor over agents; emitter may be nil, in
// which case transitions are only logged, never persisted (used in tests
// that don't need an events shard).
func NewHealthMonitor(agents *AgentRegistry, emitter *eventlog.Emitter, logger *zap.Logger) (*HealthMonitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &HealthMonitor{agents: agents, emitter: emitter, logger: logger, sched: sched}, nil
}

// Start schedules the recurring poll and starts the scheduler.
func (h *HealthMonitor) Start() error {
	_, err := h.sched.NewJob(gocron.DurationJob(pollInterval), gocron.NewTask(h.tick))
	if err != nil {
		return err
	}
	h.sched.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for any in-flight tick to finish.
func (h *HealthMonitor) Stop() error { return h.sched.Shutdown() }

func (h *HealthMonitor) tick() {
	now := time.Now()
	for _, a := range h.agents.All() {
		status := clustermeta.DeriveStatus(a.LastHeartbeat, now)
		prev, changed := h.agents.SetStatus(a.ID, status)
		if !changed {
			continue
		}
		h.logger.Info("agent status transition", zap.String("agent_id", a.ID),
			zap.String("from", string(prev)), zap.String("to", string(status)))
		h.emit(a.ID, prev, status)
	}
}

func (h *HealthMonitor) emit(agentID string, prev, status clustermeta.AgentStatus) {
	if h.emitter == nil {
		return
	}
	var typ eventlog.Type
	switch {
	case status == clustermeta.AgentDegraded:
		typ = eventlog.AgentDegraded
	case status == clustermeta.AgentOffline:
		typ = eventlog.AgentOffline
	case status == clustermeta.AgentHealthy && prev != "":
		typ = eventlog.AgentRecovered
	default:
		return
	}
	h.emitter.Emit(eventlog.New(typ, agentID, time.Now(), map[string]string{"from": string(prev), "to": string(status)}))
}
