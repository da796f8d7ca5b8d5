package walog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.wal")

	w, err := Open(path, 0, "test", nil)
	require.NoError(t, err)

	p1, err := EncodeConceptPayload(ConceptPayload{ID: [16]byte{1}, Content: "a"})
	require.NoError(t, err)
	seq1, err := w.Append(OpAddConcept, p1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)

	p2, err := EncodeAssociationPayload(AssociationPayload{Source: [16]byte{1}, Target: [16]byte{2}})
	require.NoError(t, err)
	seq2, err := w.Append(OpAddAssociation, p2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq2)

	require.NoError(t, w.Close())

	var ops []Op
	lastSeq, validLen, err := Replay(path, func(r Record) error {
		ops = append(ops, r.Op)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), lastSeq)
	require.Equal(t, []Op{OpAddConcept, OpAddAssociation}, ops)
	require.Greater(t, validLen, int64(0))
}

func TestReplayStopsAtTornTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.wal")

	w, err := Open(path, 0, "test", nil)
	require.NoError(t, err)
	p1, err := EncodeConceptPayload(ConceptPayload{ID: [16]byte{1}})
	require.NoError(t, err)
	_, err = w.Append(OpAddConcept, p1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Append a truncated second record (only a length prefix, no body).
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xFF, 0xFF, 0xFF, 0x7F})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var count int
	lastSeq, _, err := Replay(path, func(r Record) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, uint64(1), lastSeq)
}

func TestReplayOnMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	lastSeq, validLen, err := Replay(filepath.Join(dir, "missing.wal"), func(Record) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(0), lastSeq)
	require.Equal(t, int64(0), validLen)
}
