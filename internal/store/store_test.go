package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/vectorindex"
	"github.com/sutra-db/sutra/internal/walog"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(Options{Dir: dir, ShardName: "test", Dimension: 2, Metric: vectorindex.Cosine})
	require.NoError(t, err)
	return s
}

func TestOpenOnEmptyDirCreatesMeta(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	defer s.Close()

	require.Equal(t, 0, s.Index().ConceptCount())
	_, err := loadMeta(filepath.Join(dir, metaFileName))
	require.NoError(t, err)
}

func TestCrashBeforeCheckpointReplaysFromWAL(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	id := concept.DeriveID(concept.Tenant{}, "A")
	payload, err := walog.EncodeConceptPayload(walog.ConceptPayload{
		ID: id, Content: "A", Embedding: []float32{1, 0}, Strength: 1, Confidence: 0.5,
		CreatedNs: time.Now().UnixNano(), AccessNs: time.Now().UnixNano(),
	})
	require.NoError(t, err)
	_, err = s.WAL().Append(walog.OpAddConcept, payload)
	require.NoError(t, err)

	c := &concept.Concept{ID: id, Content: "A", Embedding: []float32{1, 0}, Strength: 1, Confidence: 0.5}
	s.Index().UpsertConcept(c)
	s.Vectors().Insert(id, c.Embedding)

	// Simulate a crash: close without checkpointing, reopen and replay.
	require.NoError(t, s.wal.Close())

	s2 := openTestStore(t, dir)
	defer s2.Close()

	got, ok := s2.Index().GetConcept(id)
	require.True(t, ok)
	require.Equal(t, "A", got.Content)
}

func TestCheckpointThenRecoverPreservesState(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	idA := concept.DeriveID(concept.Tenant{}, "alpha")
	idB := concept.DeriveID(concept.Tenant{}, "beta")
	s.Index().UpsertConcept(&concept.Concept{ID: idA, Content: "alpha", Embedding: []float32{1, 0}, Strength: 1, Confidence: 0.5})
	s.Index().UpsertConcept(&concept.Concept{ID: idB, Content: "beta", Embedding: []float32{0, 1}, Strength: 1, Confidence: 0.5})
	s.Index().UpsertAssociation(&concept.Association{Source: idA, Target: idB, Type: concept.Semantic, Weight: 5, Confidence: 0.9, LastUsedAt: time.Now()})
	s.Vectors().Insert(idA, []float32{1, 0})
	s.Vectors().Insert(idB, []float32{0, 1})

	require.NoError(t, s.Checkpoint())
	require.NoError(t, s.Close())

	s2 := openTestStore(t, dir)
	defer s2.Close()

	require.Equal(t, 2, s2.Index().ConceptCount())
	require.Equal(t, 1, s2.Index().AssociationCount())
	_, ok := s2.Index().GetConcept(idA)
	require.True(t, ok)
}
