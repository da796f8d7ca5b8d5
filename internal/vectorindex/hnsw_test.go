package vectorindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/concept"
)

func TestSearchRanksByCosineDistance(t *testing.T) {
	g := New(Cosine, 3, DefaultM, DefaultEfConstruction)

	id1 := concept.ID{1}
	id2 := concept.ID{2}
	id3 := concept.ID{3}
	g.Insert(id1, []float32{1, 0, 0})
	g.Insert(id2, []float32{0.9, 0.1, 0})
	g.Insert(id3, []float32{0, 1, 0})

	results := g.Search([]float32{1, 0, 0}, 2, 50)
	require.Len(t, results, 2)
	require.Equal(t, id1, results[0].ID)
	require.InDelta(t, 0.0, results[0].Distance, 1e-9)
	require.Equal(t, id2, results[1].ID)
	require.InDelta(t, 0.00612, results[1].Distance, 1e-3)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hnsw.idx")

	g := New(Cosine, 2, DefaultM, DefaultEfConstruction)
	g.Insert(concept.ID{1}, []float32{1, 0})
	g.Insert(concept.ID{2}, []float32{0, 1})
	require.NoError(t, g.Save(path))

	loaded, err := Load(path, 2, Cosine)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	results := loaded.Search([]float32{1, 0}, 1, 50)
	require.Len(t, results, 1)
	require.Equal(t, concept.ID{1}, results[0].ID)
}

func TestLoadRejectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hnsw.idx")

	g := New(Cosine, 2, DefaultM, DefaultEfConstruction)
	g.Insert(concept.ID{1}, []float32{1, 0})
	require.NoError(t, g.Save(path))

	_, err := Load(path, 3, Cosine)
	require.Error(t, err)
}
