package store

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/segment"
	"github.com/sutra-db/sutra/internal/walog"
)

// Checkpoint rewrites the segment from current in-memory state:
//
//  1. quiesce writes by swapping to a new WAL file
//  2. serialize the current in-memory graph into a new segment file with a
//     temporary name
//  3. fsync the new segment
//  4. atomically rename over the old segment
//  5. delete the prior WAL
//
// The segment file is read only at Open (loadSegment copies it into the
// in-memory index and unmaps it), so no reader holds a mapping across the
// rename; the WAL swap itself is a single pointer update under s.mu.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	// Step 1: swap to a new WAL file so in-flight writers start recording
	// against a clean log while this checkpoint serializes the graph that
	// existed at the swap instant.
	oldWALPath := s.walPath()
	prevWALPath := oldWALPath + ".prev"
	lastSeq := s.wal.NextSeq() - 1 // continue the monotonic sequence across the swap
	if err := s.wal.Close(); err != nil {
		return fmt.Errorf("checkpoint: close wal: %w", err)
	}
	if err := os.Rename(oldWALPath, prevWALPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: swap wal: %w", err)
	}
	newWAL, err := walog.Open(oldWALPath, lastSeq, s.shardName, s.reg)
	if err != nil {
		return fmt.Errorf("checkpoint: open fresh wal: %w", err)
	}
	s.wal = newWAL
	concepts, assocs := s.index.Snapshot()

	// Step 2-3: serialize and fsync a new segment under a temporary name.
	tmpPath := s.segmentPath() + ".tmp"
	entries, assocEntries := toSegmentEntries(concepts, assocs)
	if err := segment.WriteSnapshot(tmpPath, s.dimension, false, entries, assocEntries); err != nil {
		return fmt.Errorf("checkpoint: write segment: %w", err)
	}

	// Step 4: atomic rename over the old segment. A crash here leaves the
	// old segment authoritative and the partial new one orphaned at
	// tmpPath, cleaned up by a future checkpoint attempt that overwrites
	// the same temp name.
	if err := os.Rename(tmpPath, s.segmentPath()); err != nil {
		return fmt.Errorf("checkpoint: rename segment: %w", err)
	}

	// Step 5: delete the prior WAL now that its contents are reflected in
	// the new segment.
	if err := os.Remove(prevWALPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove prior wal after checkpoint", zap.Error(err))
	}

	if err := s.vectors.Save(s.hnswPath()); err != nil {
		s.logger.Warn("failed to persist hnsw index during checkpoint", zap.Error(err))
	}

	s.metrics.checkpointSeconds.Observe(time.Since(start).Seconds())
	s.logger.Info("checkpoint complete",
		zap.String("shard", s.shardName),
		zap.Int("concepts", len(concepts)),
		zap.Int("associations", len(assocs)),
	)
	return nil
}

func toSegmentEntries(concepts []*concept.Concept, assocs []*concept.Association) ([]segment.ConceptEntry, []segment.AssociationEntry) {
	ce := make([]segment.ConceptEntry, len(concepts))
	for i, c := range concepts {
		ce[i] = segment.ConceptEntry{
			ID: c.ID, Tenant: c.Tenant, Content: c.Content, Embedding: c.Embedding, Metadata: c.Metadata,
			Strength: c.Strength, Confid: c.Confidence, Access: c.AccessCount,
			CreatedNs: c.CreatedAt.UnixNano(), AccessNs: c.LastAccessAt.UnixNano(), Tombstone: c.Tombstoned,
		}
	}
	ae := make([]segment.AssociationEntry, len(assocs))
	for i, a := range assocs {
		ae[i] = segment.AssociationEntry{
			Source: a.Source, Target: a.Target, Tenant: a.Tenant, Type: a.Type,
			Weight: a.Weight, Confidence: a.Confidence,
			CreatedNs: a.CreatedAt.UnixNano(), UsedNs: a.LastUsedAt.UnixNano(),
		}
	}
	return ce, ae
}
