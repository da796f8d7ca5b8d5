package storagenode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/store"
	"github.com/sutra-db/sutra/internal/vectorindex"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	s, err := store.Open(store.Options{Dir: t.TempDir(), ShardName: "test", Dimension: 2, Metric: vectorindex.Cosine})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New("test", s, nil)
}

func TestLearnConceptIsIdempotentAndDeterministic(t *testing.T) {
	n := newTestNode(t)

	id1, err := n.LearnConcept(LearnConceptRequest{Content: "Cats are mammals.", Vector: []float32{0.1, 0.1}})
	require.NoError(t, err)

	id2, err := n.LearnConcept(LearnConceptRequest{Content: "Cats are mammals.", Vector: []float32{0.1, 0.1}})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	c, err := n.QueryConcept(id1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), c.AccessCount)
	require.Greater(t, c.Strength, 1.0)
}

func TestLearnConceptRejectsDimensionMismatch(t *testing.T) {
	n := newTestNode(t)
	_, err := n.LearnConcept(LearnConceptRequest{Content: "x", Vector: []float32{1}})
	require.Error(t, err)
}

func TestLearnAssociationUnknownConcept(t *testing.T) {
	n := newTestNode(t)
	_, err := n.LearnAssociation(LearnAssociationRequest{Source: concept.ID{1}, Target: concept.ID{2}, Type: concept.Semantic, Confidence: 0.5})
	require.Error(t, err)
}

func TestVectorSearchRanking(t *testing.T) {
	n := newTestNode(t)
	id1, err := n.LearnConcept(LearnConceptRequest{Content: "a", Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, err = n.LearnConcept(LearnConceptRequest{Content: "b", Vector: []float32{0.9, 0.1}})
	require.NoError(t, err)
	_, err = n.LearnConcept(LearnConceptRequest{Content: "c", Vector: []float32{0, 1}})
	require.NoError(t, err)

	results, err := n.VectorSearch(VectorSearchRequest{Query: []float32{1, 0}, K: 2, Ef: 50})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, id1, results[0].ID)
}

func TestFindPathConnectsThroughAssociation(t *testing.T) {
	n := newTestNode(t)
	idA, err := n.LearnConcept(LearnConceptRequest{Content: "a", Vector: []float32{1, 0}})
	require.NoError(t, err)
	idB, err := n.LearnConcept(LearnConceptRequest{Content: "b", Vector: []float32{0, 1}})
	require.NoError(t, err)
	_, err = n.LearnAssociation(LearnAssociationRequest{Source: idA, Target: idB, Type: concept.Semantic, Confidence: 0.9, Weight: 5})
	require.NoError(t, err)

	path, err := n.FindPath(idA, idB, 5)
	require.NoError(t, err)
	require.Equal(t, []concept.ID{idA, idB}, path.Concepts)
	require.Greater(t, path.Confidence, 0.0)
}

func TestGetNeighborsDepthExceeded(t *testing.T) {
	n := newTestNode(t)
	id, err := n.LearnConcept(LearnConceptRequest{Content: "a", Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, err = n.GetNeighborsDepth(id, 0, 21)
	require.Error(t, err)
}
