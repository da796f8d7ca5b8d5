package segment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/concept"
)

func TestWriteSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.dat")

	now := time.Now().UnixNano()
	id1 := concept.DeriveID(concept.Tenant{}, "Cats are mammals.")
	id2 := concept.DeriveID(concept.Tenant{}, "Dogs are mammals.")

	concepts := []ConceptEntry{
		{ID: id2, Content: "Dogs are mammals.", Embedding: []float32{0, 1}, Strength: 1, Confid: 0.5, CreatedNs: now, AccessNs: now, Metadata: map[string]string{"k": "v"}},
		{ID: id1, Content: "Cats are mammals.", Embedding: []float32{1, 0}, Strength: 1, Confid: 0.5, CreatedNs: now, AccessNs: now},
	}
	assocs := []AssociationEntry{
		{Source: id1, Target: id2, Type: concept.Semantic, Weight: 5, Confidence: 0.9, CreatedNs: now, UsedNs: now},
	}

	require.NoError(t, WriteSnapshot(path, 2, false, concepts, assocs))

	r, err := Open(path, 2)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 2, r.ConceptCount())
	require.Equal(t, 1, r.AssociationCount())

	rec, slot, ok := r.FindConcept(id1)
	require.True(t, ok)
	require.False(t, r.IsTombstoned(slot))
	require.Equal(t, "Cats are mammals.", r.Content(rec))
	require.Equal(t, []float32{1, 0}, r.Embedding(slot, 2))

	rec2, slot2, ok := r.FindConcept(id2)
	require.True(t, ok)
	meta, err := r.Metadata(rec2)
	require.NoError(t, err)
	require.Equal(t, "v", meta["k"])
	require.Equal(t, []float32{0, 1}, r.Embedding(slot2, 2))

	assoc, ok := r.FindAssociation(id1, id2, concept.Semantic)
	require.True(t, ok)
	require.Equal(t, 5.0, assoc.Weight)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.dat")
	require.NoError(t, os.WriteFile(path, make([]byte, 256), 0o644))
	_, err := Open(path, 2)
	require.Error(t, err)
}
