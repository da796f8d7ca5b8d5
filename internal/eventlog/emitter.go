package eventlog

import (
	"crypto/sha256"
	"encoding/json"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/storagenode"
)

// Emitter queues events on an unbounded in-process buffer and persists
// them one at a time on a dedicated goroutine. The buffer is a plain slice
// guarded by a mutex/cond rather than a buffered channel, since a
// channel's capacity is necessarily finite and emission must never block
// the operation that triggered it.
type Emitter struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}

	node   *storagenode.Node
	logger *zap.Logger
}

// NewEmitter starts the background persistence worker against node, the
// reserved events shard's storage node.
func NewEmitter(node *storagenode.Node, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Emitter{node: node, logger: logger, done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Emit enqueues ev without blocking and returns immediately; the
// originating operation never waits on persistence.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()
	e.cond.Signal()
}

// Close stops accepting new events and lets the worker drain what remains
// of the queue before returning.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	<-e.done
}

func (e *Emitter) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.persist(ev)
	}
}

// persist writes ev as a concept plus its entity/time-bucket associations.
// Any failure here is logged and swallowed: event loss must never surface
// to the caller of the operation that triggered it.
func (e *Emitter) persist(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		e.logger.Warn("eventlog: failed to encode event", zap.Error(err))
		return
	}

	metadata := map[string]string{
		"type":      string(ev.Type),
		"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
		"entity_id": ev.EntityID,
	}

	dim := e.node.Dimension()
	eventID, err := e.node.LearnConcept(storagenode.LearnConceptRequest{
		Content: string(body), Vector: pseudoEmbedding(string(body), dim), Metadata: metadata,
	})
	if err != nil {
		e.logger.Warn("eventlog: failed to persist event concept", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	entityID, err := e.node.LearnConcept(storagenode.LearnConceptRequest{
		Content: "entity:" + ev.EntityID, Vector: pseudoEmbedding("entity:"+ev.EntityID, dim),
	})
	if err == nil {
		if _, err := e.node.LearnAssociation(storagenode.LearnAssociationRequest{
			Source: eventID, Target: entityID, Type: concept.Semantic, Confidence: 1, Weight: 1,
		}); err != nil {
			e.logger.Warn("eventlog: failed to link event to entity", zap.Error(err))
		}
	} else {
		e.logger.Warn("eventlog: failed to persist entity concept", zap.Error(err))
	}

	// Events whose Details carry an agent_id (spawn requested/succeeded,
	// and the crash/restart events agents report) are also linked to that
	// agent's entity concept. EntityID alone only covers the node-id half.
	if agentID := ev.Details["agent_id"]; agentID != "" {
		agentConceptID, err := e.node.LearnConcept(storagenode.LearnConceptRequest{
			Content: "entity:" + agentID, Vector: pseudoEmbedding("entity:"+agentID, dim),
		})
		if err == nil {
			if _, err := e.node.LearnAssociation(storagenode.LearnAssociationRequest{
				Source: eventID, Target: agentConceptID, Type: concept.Semantic, Confidence: 1, Weight: 1,
			}); err != nil {
				e.logger.Warn("eventlog: failed to link event to agent", zap.Error(err))
			}
		} else {
			e.logger.Warn("eventlog: failed to persist agent entity concept", zap.Error(err))
		}
	}

	bucket := ev.Timestamp.UTC().Format("2006-01-02T15")
	bucketID, err := e.node.LearnConcept(storagenode.LearnConceptRequest{
		Content: "timebucket:" + bucket, Vector: pseudoEmbedding("timebucket:"+bucket, dim),
	})
	if err == nil {
		if _, err := e.node.LearnAssociation(storagenode.LearnAssociationRequest{
			Source: eventID, Target: bucketID, Type: concept.Temporal, Confidence: 1, Weight: 1,
		}); err != nil {
			e.logger.Warn("eventlog: failed to link event to time bucket", zap.Error(err))
		}
	} else {
		e.logger.Warn("eventlog: failed to persist time-bucket concept", zap.Error(err))
	}
}

// pseudoEmbedding derives a deterministic, unit-scaled vector from s. Event
// concepts have no real embedding-model collaborator behind them (the
// core never calls out to one); expanding a content hash into a
// fixed-dimension vector keeps them addressable by the same vector index
// the rest of the engine uses, without inventing a second concept type.
func pseudoEmbedding(s string, dim int) []float32 {
	out := make([]float32, dim)
	h := sha256.Sum256([]byte(s))
	for i := 0; i < dim; i++ {
		b := h[i%len(h)]
		shifted := h[(i*7+3)%len(h)]
		v := (float64(b) + float64(shifted)) / 510.0 // ~[0,1]
		out[i] = float32(v*2 - 1)                    // ~[-1,1]
	}
	normalize(out)
	return out
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}
