package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/sutraerr"
)

// PrepareTimeout is the per-peer deadline for each prepare RPC; a peer
// that doesn't answer within it counts as a "no" vote.
const PrepareTimeout = 10 * time.Second

// DefaultMaxConcurrentTx bounds how many transactions a coordinator
// will run at once; begin_tx is refused with a transient error past it.
const DefaultMaxConcurrentTx = 1024

// Coordinator runs the two-phase commit state machine across
// an arbitrary set of Participants, one per shard touched by a write.
type Coordinator struct {
	log    CommitLog
	logger *zap.Logger
	sem    chan struct{}
}

// NewCoordinator builds a Coordinator backed by log, admitting at most
// maxConcurrent in-flight transactions (0 uses DefaultMaxConcurrentTx).
func NewCoordinator(log CommitLog, maxConcurrent int, logger *zap.Logger) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTx
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{log: log, logger: logger, sem: make(chan struct{}, maxConcurrent)}
}

// Log exposes the coordinator's commit log so participants can resolve
// in-doubt transactions against it.
func (c *Coordinator) Log() CommitLog { return c.log }

// Begin assigns a new time-ordered transaction id and reserves a slot in
// the coordinator's concurrency budget, returning a TransientError if the
// budget is exhausted rather than queuing unboundedly.
func (c *Coordinator) Begin() (string, error) {
	select {
	case c.sem <- struct{}{}:
	default:
		return "", sutraerr.LockTimeout()
	}
	id, err := uuid.NewV7()
	if err != nil {
		<-c.sem
		return "", err
	}
	return id.String(), nil
}

// release frees a transaction's concurrency-budget slot; call once Run has
// reached a final decision.
func (c *Coordinator) release() { <-c.sem }

// Run executes the full 2PC protocol for txID: prepare every participant in
// parallel (each under its own PrepareTimeout), decide commit if and only
// if every vote was yes, durably record the decision, then broadcast
// commit/abort to every participant. It always releases txID's concurrency
// slot before returning.
func (c *Coordinator) Run(ctx context.Context, txID string, plan map[string][]Op, participants map[string]Participant) (bool, error) {
	defer c.release()

	votes := make(map[string]bool, len(plan))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for shardID, ops := range plan {
		p, ok := participants[shardID]
		if !ok {
			mu.Lock()
			votes[shardID] = false
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(shardID string, ops []Op, p Participant) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, PrepareTimeout)
			defer cancel()
			vote, err := p.Prepare(pctx, txID, ops)
			if err != nil {
				c.logger.Warn("prepare failed, treating as no vote",
					zap.String("tx_id", txID), zap.String("shard", shardID), zap.Error(err))
				vote = false
			}
			mu.Lock()
			votes[shardID] = vote
			mu.Unlock()
		}(shardID, ops, p)
	}
	wg.Wait()

	commit := true
	for _, v := range votes {
		if !v {
			commit = false
			break
		}
	}

	if err := c.log.RecordDecision(txID, commit); err != nil {
		// Cannot durably record even an abort decision: abort is still the
		// conservative choice since no participant has committed yet.
		c.logger.Error("failed to record tx decision, aborting", zap.String("tx_id", txID), zap.Error(err))
		commit = false
	}

	for shardID, p := range participants {
		if _, inPlan := plan[shardID]; !inPlan {
			continue
		}
		var err error
		if commit {
			err = p.Commit(ctx, txID)
		} else {
			err = p.Abort(ctx, txID)
		}
		if err != nil {
			c.logger.Error("participant failed to apply tx decision",
				zap.String("tx_id", txID), zap.String("shard", shardID), zap.Bool("commit", commit), zap.Error(err))
		}
	}

	c.logger.Info("transaction resolved", zap.String("tx_id", txID), zap.Bool("committed", commit), zap.Int("participants", len(plan)))
	return commit, nil
}
