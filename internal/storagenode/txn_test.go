package storagenode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/concept"
)

func TestPrepareCommitTxMakesOpsVisible(t *testing.T) {
	n := newTestNode(t)

	items := []BatchItem{{Concept: &LearnConceptRequest{Content: "tx concept", Vector: []float32{1, 0}}}}
	vote, err := n.PrepareTx("tx-1", items)
	require.NoError(t, err)
	require.True(t, vote)

	id := concept.DeriveID(concept.Tenant{}, "tx concept")
	_, err = n.QueryConcept(id)
	require.Error(t, err, "prepared ops must not be visible before commit")

	require.NoError(t, n.CommitTx("tx-1"))
	c, err := n.QueryConcept(id)
	require.NoError(t, err)
	require.Equal(t, "tx concept", c.Content)
}

func TestPrepareAbortTxDiscardsOps(t *testing.T) {
	n := newTestNode(t)

	items := []BatchItem{{Concept: &LearnConceptRequest{Content: "never lands", Vector: []float32{1, 0}}}}
	vote, err := n.PrepareTx("tx-abort", items)
	require.NoError(t, err)
	require.True(t, vote)

	require.NoError(t, n.AbortTx("tx-abort"))

	id := concept.DeriveID(concept.Tenant{}, "never lands")
	_, err = n.QueryConcept(id)
	require.Error(t, err)
	require.Empty(t, n.InDoubtTxIDs())
}

func TestPrepareTxRejectsDimensionMismatch(t *testing.T) {
	n := newTestNode(t)
	items := []BatchItem{{Concept: &LearnConceptRequest{Content: "bad", Vector: []float32{1}}}}
	vote, err := n.PrepareTx("tx-bad", items)
	require.NoError(t, err)
	require.False(t, vote)
}
