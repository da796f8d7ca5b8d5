package storagenode

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/graphidx"
	"github.com/sutra-db/sutra/internal/store"
	"github.com/sutra-db/sutra/internal/sutraerr"
	"github.com/sutra-db/sutra/internal/vectorindex"
	"github.com/sutra-db/sutra/internal/walog"
)

// OperationStats tracks per-operation counts for a node, updated
// atomically so GetStats never blocks a concurrent operation.
type OperationStats struct {
	LearnConcepts     uint64
	LearnAssociations uint64
	Queries           uint64
	Neighbors         uint64
	VectorSearches    uint64
	PathFinds         uint64
}

// Node owns exactly one shard and dispatches every C3 operation against its store.
type Node struct {
	ShardID string

	store  *store.Store
	stats  OperationStats
	logger *zap.Logger
}

// New wraps an already-recovered store.Store as a dispatching Node.
func New(shardID string, s *store.Store, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{ShardID: shardID, store: s, logger: logger}
}

// Dimension returns the configured embedding dimension for this shard.
func (n *Node) Dimension() int { return n.store.Dimension() }

// GetStats returns a point-in-time copy of the node's operation counters.
func (n *Node) GetStats() OperationStats {
	return OperationStats{
		LearnConcepts:     atomic.LoadUint64(&n.stats.LearnConcepts),
		LearnAssociations: atomic.LoadUint64(&n.stats.LearnAssociations),
		Queries:           atomic.LoadUint64(&n.stats.Queries),
		Neighbors:         atomic.LoadUint64(&n.stats.Neighbors),
		VectorSearches:    atomic.LoadUint64(&n.stats.VectorSearches),
		PathFinds:         atomic.LoadUint64(&n.stats.PathFinds),
	}
}

// Stats is the response shape for the `stats` operation:
// counts, sizes, and WAL position.
type Stats struct {
	Ops              OperationStats
	ConceptCount     int
	AssociationCount int
	WALSeq           uint64
	WALBytes         int64
}

func (n *Node) Stats() Stats {
	return Stats{
		Ops:              n.GetStats(),
		ConceptCount:     n.store.Index().ConceptCount(),
		AssociationCount: n.store.Index().AssociationCount(),
		WALSeq:           n.store.WAL().NextSeq() - 1,
		WALBytes:         n.store.WAL().SizeSinceCheckpoint(),
	}
}

// LearnConceptRequest is the input to LearnConcept.
type LearnConceptRequest struct {
	Content  string
	Tenant   concept.Tenant
	Vector   []float32
	Metadata map[string]string
}

// LearnConcept inserts or refreshes a concept, deriving its id
// deterministically from (tenant, content). Two concurrent learns of
// the same content converge to a single concept.
func (n *Node) LearnConcept(req LearnConceptRequest) (concept.ID, error) {
	if len(req.Content) > concept.MaxContentBytes {
		return concept.ID{}, sutraerr.ContentTooLarge(len(req.Content), concept.MaxContentBytes)
	}
	if len(req.Vector) != n.store.Dimension() {
		return concept.ID{}, sutraerr.DimensionMismatch(len(req.Vector), n.store.Dimension())
	}

	id := concept.DeriveID(req.Tenant, req.Content)
	now := time.Now()

	existing, ok := n.store.Index().GetConcept(id)
	if ok {
		if existing.Tenant != req.Tenant {
			return concept.ID{}, sutraerr.TenantMismatch(hexID(existing.Tenant[:]), hexID(req.Tenant[:]))
		}
		existing.Access(now)
		if err := n.appendConceptRecord(existing); err != nil {
			return concept.ID{}, err
		}
		n.store.Index().UpsertConcept(existing)
		atomic.AddUint64(&n.stats.LearnConcepts, 1)
		return id, nil
	}

	c := &concept.Concept{
		ID:           id,
		Tenant:       req.Tenant,
		Content:      req.Content,
		Embedding:    req.Vector,
		Metadata:     req.Metadata,
		Strength:     concept.MinStrength,
		Confidence:   concept.MinConfidence,
		AccessCount:  1,
		CreatedAt:    now,
		LastAccessAt: now,
	}
	if err := n.appendConceptRecord(c); err != nil {
		return concept.ID{}, err
	}
	n.store.Index().UpsertConcept(c)
	n.store.Vectors().Insert(id, req.Vector)
	atomic.AddUint64(&n.stats.LearnConcepts, 1)
	return id, nil
}

func (n *Node) appendConceptRecord(c *concept.Concept) error {
	payload, err := walog.EncodeConceptPayload(walog.ConceptPayload{
		ID: c.ID, Tenant: c.Tenant, Content: c.Content, Embedding: c.Embedding, Metadata: c.Metadata,
		Strength: c.Strength, Confidence: c.Confidence, AccessCount: c.AccessCount,
		CreatedNs: c.CreatedAt.UnixNano(), AccessNs: c.LastAccessAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	op := walog.OpAddConcept
	if c.AccessCount > 1 {
		op = walog.OpUpdateConcept
	}
	if _, err := n.store.WAL().Append(op, payload); err != nil {
		return sutraerr.WALWriteFailed(err)
	}
	return nil
}

// LearnAssociationRequest is the input to LearnAssociation.
type LearnAssociationRequest struct {
	Source     concept.ID
	Target     concept.ID
	Type       concept.AssocType
	Confidence float64
	Weight     float64
}

// LearnAssociation creates or strengthens an edge.
func (n *Node) LearnAssociation(req LearnAssociationRequest) (concept.Key, error) {
	src, ok := n.store.Index().GetConcept(req.Source)
	if !ok {
		return concept.Key{}, sutraerr.UnknownConcept(req.Source.String())
	}
	tgt, ok := n.store.Index().GetConcept(req.Target)
	if !ok {
		return concept.Key{}, sutraerr.UnknownConcept(req.Target.String())
	}
	if src.Tenant != tgt.Tenant {
		return concept.Key{}, sutraerr.TenantMismatch(hexID(src.Tenant[:]), hexID(tgt.Tenant[:]))
	}

	key := concept.Key{Source: req.Source, Target: req.Target, Type: req.Type}
	now := time.Now()
	weight := req.Weight
	if weight == 0 {
		weight = 1
	}

	existing, ok := n.store.Index().GetAssociation(key)
	var a *concept.Association
	if ok {
		existing.Strengthen(weight, req.Confidence, now)
		a = existing
	} else {
		a = &concept.Association{
			Source: req.Source, Target: req.Target, Tenant: src.Tenant, Type: req.Type,
			Weight: concept.ClampWeight(weight), Confidence: concept.ClampConfidence(req.Confidence),
			CreatedAt: now, LastUsedAt: now,
		}
	}

	payload, err := walog.EncodeAssociationPayload(walog.AssociationPayload{
		Source: a.Source, Target: a.Target, Tenant: a.Tenant, Type: uint8(a.Type),
		Weight: a.Weight, Confidence: a.Confidence, CreatedNs: a.CreatedAt.UnixNano(), UsedNs: a.LastUsedAt.UnixNano(),
	})
	if err != nil {
		return concept.Key{}, err
	}
	op := walog.OpAddAssociation
	if ok {
		op = walog.OpStrengthenAssociation
	}
	if _, err := n.store.WAL().Append(op, payload); err != nil {
		return concept.Key{}, sutraerr.WALWriteFailed(err)
	}

	n.store.Index().UpsertAssociation(a)
	atomic.AddUint64(&n.stats.LearnAssociations, 1)
	return key, nil
}

// QueryConcept returns the concept for id.
func (n *Node) QueryConcept(id concept.ID) (*concept.Concept, error) {
	atomic.AddUint64(&n.stats.Queries, 1)
	c, ok := n.store.Index().GetConcept(id)
	if !ok || c.Tombstoned {
		return nil, sutraerr.UnknownConcept(id.String())
	}
	return c, nil
}

// GetNeighbors returns the concepts directly associated with id.
func (n *Node) GetNeighbors(id concept.ID, typeFilter concept.AssocType) ([]graphidx.Neighbor, error) {
	atomic.AddUint64(&n.stats.Neighbors, 1)
	if _, ok := n.store.Index().GetConcept(id); !ok {
		return nil, sutraerr.UnknownConcept(id.String())
	}
	return n.store.Index().GetNeighbors(id, typeFilter), nil
}

// VectorSearchRequest is the input to VectorSearch.
type VectorSearchRequest struct {
	Query  []float32
	K      int
	Ef     int
	Tenant *concept.Tenant // nil means no tenant filter
}

// VectorSearch ranks the k nearest concepts to Query by the store's
// configured distance metric.
func (n *Node) VectorSearch(req VectorSearchRequest) ([]vectorindex.SearchResult, error) {
	if len(req.Query) != n.store.Dimension() {
		return nil, sutraerr.DimensionMismatch(len(req.Query), n.store.Dimension())
	}
	if req.K > MaxSearchK {
		return nil, sutraerr.KExceeded(req.K, MaxSearchK)
	}
	atomic.AddUint64(&n.stats.VectorSearches, 1)

	// Over-fetch when a tenant filter is set since HNSW has no notion of
	// tenancy; the excess is filtered out below.
	fetchK := req.K
	if req.Tenant != nil {
		fetchK = req.K * 4
		if fetchK > MaxSearchK*4 {
			fetchK = MaxSearchK * 4
		}
	}
	results := n.store.SearchVectors(req.Query, fetchK, req.Ef)
	if req.Tenant == nil {
		if len(results) > req.K {
			results = results[:req.K]
		}
		return results, nil
	}

	out := make([]vectorindex.SearchResult, 0, req.K)
	for _, r := range results {
		c, ok := n.store.Index().GetConcept(r.ID)
		if !ok || c.Tenant != *req.Tenant {
			continue
		}
		out = append(out, r)
		if len(out) == req.K {
			break
		}
	}
	return out, nil
}

func hexID(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
