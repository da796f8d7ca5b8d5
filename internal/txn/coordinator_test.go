package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/store"
	"github.com/sutra-db/sutra/internal/storagenode"
	"github.com/sutra-db/sutra/internal/vectorindex"
)

func newParticipant(t *testing.T, name string) (*LocalParticipant, *storagenode.Node) {
	t.Helper()
	s, err := store.Open(store.Options{Dir: t.TempDir(), ShardName: name, Dimension: 2, Metric: vectorindex.Cosine})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	n := storagenode.New(name, s, nil)
	return &LocalParticipant{Node: n}, n
}

func TestCoordinatorCommitsWhenAllVoteYes(t *testing.T) {
	p1, n1 := newParticipant(t, "s1")
	p2, n2 := newParticipant(t, "s2")

	c := NewCoordinator(NewMemCommitLog(), 0, nil)
	txID, err := c.Begin()
	require.NoError(t, err)

	plan := map[string][]Op{
		"s1": {{Concept: &ConceptOp{Content: "left", Vector: []float32{1, 0}}}},
		"s2": {{Concept: &ConceptOp{Content: "right", Vector: []float32{0, 1}}}},
	}
	committed, err := c.Run(context.Background(), txID, plan, map[string]Participant{"s1": p1, "s2": p2})
	require.NoError(t, err)
	require.True(t, committed)

	_, err = n1.QueryConcept(concept.DeriveID(concept.Tenant{}, "left"))
	require.NoError(t, err)
	_, err = n2.QueryConcept(concept.DeriveID(concept.Tenant{}, "right"))
	require.NoError(t, err)

	decision, found := c.Log().Decision(txID)
	require.True(t, found)
	require.True(t, decision)
}

func TestCoordinatorAbortsWhenAnyVoteNo(t *testing.T) {
	p1, n1 := newParticipant(t, "s1")
	p2, _ := newParticipant(t, "s2")

	c := NewCoordinator(NewMemCommitLog(), 0, nil)
	txID, err := c.Begin()
	require.NoError(t, err)

	plan := map[string][]Op{
		"s1": {{Concept: &ConceptOp{Content: "left", Vector: []float32{1, 0}}}},
		"s2": {{Concept: &ConceptOp{Content: "bad dimension", Vector: []float32{1}}}}, // invalid -> no vote
	}
	committed, err := c.Run(context.Background(), txID, plan, map[string]Participant{"s1": p1, "s2": p2})
	require.NoError(t, err)
	require.False(t, committed)

	_, err = n1.QueryConcept(concept.DeriveID(concept.Tenant{}, "left"))
	require.Error(t, err, "no participant should see the write once any peer voted no")
}

func TestBeginRejectsWhenConcurrencyBudgetExhausted(t *testing.T) {
	c := NewCoordinator(NewMemCommitLog(), 1, nil)
	_, err := c.Begin()
	require.NoError(t, err)
	_, err = c.Begin()
	require.Error(t, err)
}
