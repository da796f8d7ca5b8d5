package graphidx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/concept"
)

func mkConcept(id concept.ID, content string) *concept.Concept {
	return &concept.Concept{ID: id, Content: content, Strength: 5, Confidence: 0.5}
}

func TestUpsertAndGetConcept(t *testing.T) {
	idx := New()
	id := concept.DeriveID(concept.Tenant{}, "hello")
	idx.UpsertConcept(mkConcept(id, "hello"))

	c, ok := idx.GetConcept(id)
	require.True(t, ok)
	require.Equal(t, "hello", c.Content)

	found, ok := idx.FindByContent(concept.Tenant{}, "  hello  ")
	require.True(t, ok)
	require.Equal(t, id, found)
}

func TestNeighborIndexIsBidirectional(t *testing.T) {
	idx := New()
	a := concept.DeriveID(concept.Tenant{}, "cat")
	b := concept.DeriveID(concept.Tenant{}, "dog")
	idx.UpsertConcept(mkConcept(a, "cat"))
	idx.UpsertConcept(mkConcept(b, "dog"))

	idx.UpsertAssociation(&concept.Association{Source: a, Target: b, Type: concept.Semantic, Weight: 5, Confidence: 0.8, LastUsedAt: time.Now()})

	nb := idx.GetNeighbors(a, 0)
	require.Len(t, nb, 1)
	require.Equal(t, b, nb[0].Concept.ID)
	require.True(t, nb[0].Outbound)

	nb2 := idx.GetNeighbors(b, 0)
	require.Len(t, nb2, 1)
	require.Equal(t, a, nb2[0].Concept.ID)
	require.False(t, nb2[0].Outbound)
}

func TestDecayAndPrunePrunesWeakAssociations(t *testing.T) {
	idx := New()
	a := concept.DeriveID(concept.Tenant{}, "a")
	b := concept.DeriveID(concept.Tenant{}, "b")
	idx.UpsertConcept(mkConcept(a, "a"))
	idx.UpsertConcept(mkConcept(b, "b"))

	old := time.Now().Add(-100 * time.Hour)
	idx.UpsertAssociation(&concept.Association{Source: a, Target: b, Type: concept.Semantic, Weight: 1, Confidence: 1, LastUsedAt: old})

	pruned := idx.DecayAndPrune(time.Now(), time.Hour, 0.5)
	require.Equal(t, 1, pruned)
	require.Empty(t, idx.GetNeighbors(a, 0))
	require.Empty(t, idx.GetNeighbors(b, 0))
}
