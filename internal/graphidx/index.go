package graphidx

import (
	"math"
	"sync"
	"time"

	"github.com/sutra-db/sutra/internal/concept"
)

// neighborEntry is one edge in the bidirectional neighbor index, stored from
// the perspective of the concept it hangs off: Other is the concept at the
// far end and Outbound reports whether the owning concept was the
// association's Source.
type neighborEntry struct {
	Other    concept.ID
	Type     concept.AssocType
	Outbound bool
}

// Index is the thread-safe, in-memory graph held by one shard: concepts,
// associations, and a symmetric neighbor map kept in lockstep so
// get_neighbors never has to scan the full association map.
type Index struct {
	mu        sync.RWMutex
	concepts  map[concept.ID]*concept.Concept
	assocs    map[concept.Key]*concept.Association
	neighbors map[concept.ID][]neighborEntry
	// byTenantContent indexes concepts by (tenant, normalized content) for
	// callers that already know the content and want to skip re-deriving
	// the id; primarily used by learn_concept's dedup fast path.
	byTenantContent map[contentKey]concept.ID
}

type contentKey struct {
	tenant  concept.Tenant
	content string
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		concepts:        make(map[concept.ID]*concept.Concept),
		assocs:          make(map[concept.Key]*concept.Association),
		neighbors:       make(map[concept.ID][]neighborEntry),
		byTenantContent: make(map[contentKey]concept.ID),
	}
}

// UpsertConcept inserts c or replaces the existing concept with the same id.
// Callers are expected to have already clamped Strength/Confidence and
// derived ID via concept.DeriveID; UpsertConcept
// does not re-validate them.
func (idx *Index) UpsertConcept(c *concept.Concept) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.concepts[c.ID] = c
	idx.byTenantContent[contentKey{c.Tenant, concept.Normalize(c.Content)}] = c.ID
}

// GetConcept returns the concept for id, or ok=false if absent or
// tombstoned-and-purged.
func (idx *Index) GetConcept(id concept.ID) (*concept.Concept, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.concepts[id]
	return c, ok
}

// FindByContent resolves a (tenant, content) pair to an existing concept id
// via the deterministic digest, without requiring the caller to recompute
// it when they already hold a reference.
func (idx *Index) FindByContent(tenant concept.Tenant, content string) (concept.ID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.byTenantContent[contentKey{tenant, concept.Normalize(content)}]
	return id, ok
}

// UpsertAssociation inserts assoc or replaces the existing edge with the
// same (source, target, type) key, maintaining the neighbor index for both
// endpoints.
func (idx *Index) UpsertAssociation(a *concept.Association) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := a.Key()
	if _, exists := idx.assocs[key]; !exists {
		idx.neighbors[a.Source] = append(idx.neighbors[a.Source], neighborEntry{Other: a.Target, Type: a.Type, Outbound: true})
		idx.neighbors[a.Target] = append(idx.neighbors[a.Target], neighborEntry{Other: a.Source, Type: a.Type, Outbound: false})
	}
	idx.assocs[key] = a
}

// GetAssociation returns the association for the given key, if present.
func (idx *Index) GetAssociation(key concept.Key) (*concept.Association, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	a, ok := idx.assocs[key]
	return a, ok
}

// TouchLastUsed refreshes an association's LastUsedAt without changing its
// weight or confidence, used by path-finding to record that an edge was
// traversed.
func (idx *Index) TouchLastUsed(key concept.Key, now time.Time) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	a, ok := idx.assocs[key]
	if !ok {
		return false
	}
	a.LastUsedAt = now
	return true
}

// Neighbor is one edge returned by GetNeighbors, resolved to its full
// concept and association records.
type Neighbor struct {
	Concept     *concept.Concept
	Association *concept.Association
	Outbound    bool
}

// GetNeighbors returns every concept directly associated with id, optionally
// filtered to a single association type (typeFilter == 0 means "any").
func (idx *Index) GetNeighbors(id concept.ID, typeFilter concept.AssocType) []Neighbor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entries := idx.neighbors[id]
	out := make([]Neighbor, 0, len(entries))
	for _, e := range entries {
		if typeFilter != 0 && e.Type != typeFilter {
			continue
		}
		c, ok := idx.concepts[e.Other]
		if !ok {
			continue
		}
		var key concept.Key
		if e.Outbound {
			key = concept.Key{Source: id, Target: e.Other, Type: e.Type}
		} else {
			key = concept.Key{Source: e.Other, Target: id, Type: e.Type}
		}
		a := idx.assocs[key]
		out = append(out, Neighbor{Concept: c, Association: a, Outbound: e.Outbound})
	}
	return out
}

// ConceptCount returns the number of concepts currently indexed, tombstoned
// ones included.
func (idx *Index) ConceptCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.concepts)
}

// AssociationCount returns the number of associations currently indexed.
func (idx *Index) AssociationCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.assocs)
}

// Snapshot returns every concept (tombstoned ones included, so tombstones
// carry forward through a checkpoint) and every association, in no
// particular order, for use by the checkpoint writer (internal/store) and
// by segment.WriteSnapshot. The slices hold the index's own records, not
// copies.
func (idx *Index) Snapshot() ([]*concept.Concept, []*concept.Association) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	concepts := make([]*concept.Concept, 0, len(idx.concepts))
	for _, c := range idx.concepts {
		concepts = append(concepts, c)
	}
	assocs := make([]*concept.Association, 0, len(idx.assocs))
	for _, a := range idx.assocs {
		assocs = append(assocs, a)
	}
	return concepts, assocs
}

// DecayAndPrune applies exponential half-life decay to every association's
// weight based on elapsed time since LastUsedAt, then removes associations
// whose decayed score falls below minScore. It returns the number
// of associations pruned.
func (idx *Index) DecayAndPrune(now time.Time, halfLife time.Duration, minScore float64) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if halfLife <= 0 {
		return 0
	}
	lambda := math.Ln2 / halfLife.Seconds()

	pruned := 0
	for key, a := range idx.assocs {
		elapsed := now.Sub(a.LastUsedAt).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		decayed := a.Weight * math.Exp(-lambda*elapsed)
		a.Weight = concept.ClampWeight(decayed)
		if a.Score() < minScore {
			delete(idx.assocs, key)
			idx.removeNeighborEntry(key.Source, key.Target, key.Type)
			idx.removeNeighborEntry(key.Target, key.Source, key.Type)
			pruned++
		}
	}
	return pruned
}

func (idx *Index) removeNeighborEntry(owner, other concept.ID, typ concept.AssocType) {
	entries := idx.neighbors[owner]
	for i, e := range entries {
		if e.Other == other && e.Type == typ {
			idx.neighbors[owner] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}
