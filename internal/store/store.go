package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/graphidx"
	"github.com/sutra-db/sutra/internal/segment"
	"github.com/sutra-db/sutra/internal/sutraerr"
	"github.com/sutra-db/sutra/internal/vectorindex"
	"github.com/sutra-db/sutra/internal/walog"
)

const (
	segmentFileName     = "segment.dat"
	segmentTmpFileName  = "segment.dat.tmp"
	walFileName         = "wal.log"
	walPrevFileName     = "wal.log.prev"
	hnswFileName        = "hnsw.idx"
	metaFileName        = "meta.json"
	defaultHNSWM        = vectorindex.DefaultM
	defaultHNSWEfConstr = vectorindex.DefaultEfConstruction
)

// Options configures Open.
type Options struct {
	Dir                 string
	ShardName           string
	Dimension           int
	Metric              vectorindex.Metric
	TenantMode          bool
	CheckpointThreshold int64 // bytes; 0 disables size-triggered checkpoints
	HNSWM               int
	HNSWEfConstruction  int
	Logger              *zap.Logger
	Registerer          prometheus.Registerer
}

// Store is the durable, checkpointed, crash-recoverable state of one shard:
// a segment file plus its WAL, with the in-memory graph and vector index
// kept consistent with both.
type Store struct {
	mu sync.RWMutex // guards segment swap during checkpoint; index/vectors have their own locking

	dir       string
	shardName string
	dimension int
	metric    vectorindex.Metric

	index   *graphidx.Index
	vectors *vectorindex.Graph
	wal     *walog.WAL

	txMu    sync.Mutex
	pending map[string][][]byte // tx id -> encoded ops, prepared but not yet committed/aborted

	checkpointThreshold int64
	hnswM               int
	hnswEfConstruction  int

	logger  *zap.Logger
	reg     prometheus.Registerer
	metrics *storeMetrics
}

// Open performs recovery and returns a ready Store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HNSWM <= 0 {
		opts.HNSWM = defaultHNSWM
	}
	if opts.HNSWEfConstruction <= 0 {
		opts.HNSWEfConstruction = defaultHNSWEfConstr
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}

	metaPath := filepath.Join(opts.Dir, metaFileName)
	meta, err := loadMeta(metaPath)
	if os.IsNotExist(err) {
		meta = &Meta{Dimension: opts.Dimension, Metric: metricName(opts.Metric), TenantMode: opts.TenantMode, Version: metaVersion, CreatedAt: time.Now()}
		if err := saveMeta(metaPath, meta); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if meta.Dimension != opts.Dimension {
		return nil, sutraerr.LoadDimensionMismatch(meta.Dimension, opts.Dimension)
	}

	s := &Store{
		dir:                 opts.Dir,
		shardName:           opts.ShardName,
		dimension:           opts.Dimension,
		metric:              opts.Metric,
		index:               graphidx.New(),
		pending:             make(map[string][][]byte),
		checkpointThreshold: opts.CheckpointThreshold,
		hnswM:               opts.HNSWM,
		hnswEfConstruction:  opts.HNSWEfConstruction,
		logger:              opts.Logger,
		reg:                 opts.Registerer,
	}
	s.metrics = newStoreMetrics(s.reg, s.shardName)

	if err := s.loadSegment(); err != nil {
		return nil, fmt.Errorf("store: load segment: %w", err)
	}

	lastSeq, err := s.replayWAL()
	if err != nil {
		return nil, fmt.Errorf("store: replay wal: %w", err)
	}

	s.loadVectorIndex()

	if err := s.checkInvariants(); err != nil {
		return nil, err
	}

	wal, err := walog.Open(s.walPath(), lastSeq, s.shardName, s.reg)
	if err != nil {
		return nil, fmt.Errorf("store: open wal: %w", err)
	}
	s.wal = wal

	s.logger.Info("shard recovered",
		zap.String("shard", s.shardName),
		zap.Int("concepts", s.index.ConceptCount()),
		zap.Int("associations", s.index.AssociationCount()),
		zap.Uint64("last_wal_seq", lastSeq),
	)
	return s, nil
}

func metricName(m vectorindex.Metric) string {
	if m == vectorindex.Euclidean {
		return "euclidean"
	}
	return "cosine"
}

func (s *Store) segmentPath() string { return filepath.Join(s.dir, segmentFileName) }
func (s *Store) walPath() string     { return filepath.Join(s.dir, walFileName) }
func (s *Store) hnswPath() string    { return filepath.Join(s.dir, hnswFileName) }

// Index returns the in-memory graph index for read and write operations.
func (s *Store) Index() *graphidx.Index { return s.index }

// Vectors returns the HNSW vector index.
func (s *Store) Vectors() *vectorindex.Graph { return s.vectors }

// SearchVectors runs an HNSW search, timing it for the shard's
// vector-search latency histogram.
func (s *Store) SearchVectors(query []float32, k, ef int) []vectorindex.SearchResult {
	start := time.Now()
	results := s.vectors.Search(query, k, ef)
	s.metrics.searchSeconds.Observe(time.Since(start).Seconds())
	return results
}

// WAL returns the active write-ahead log, for appending operations before
// they are applied to Index/Vectors.
func (s *Store) WAL() *walog.WAL { return s.wal }

// Dimension returns the configured embedding dimension for this shard.
func (s *Store) Dimension() int { return s.dimension }

func (s *Store) loadSegment() error {
	r, err := segment.Open(s.segmentPath(), s.dimension)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer r.Close()

	r.AllConcepts(func(slot int, rec segment.ConceptRecord) {
		tombstoned := r.IsTombstoned(slot)
		content := r.Content(rec)
		metadata, _ := r.Metadata(rec)
		embedding := r.Embedding(slot, s.dimension)
		c := &concept.Concept{
			ID:           rec.ID,
			Tenant:       rec.Tenant,
			Content:      content,
			Embedding:    embedding,
			Metadata:     metadata,
			Strength:     rec.Strength,
			Confidence:   rec.Confidence,
			AccessCount:  rec.AccessCount,
			CreatedAt:    time.Unix(0, rec.CreatedAtUnixNano),
			LastAccessAt: time.Unix(0, rec.LastAccessUnixNano),
			Tombstoned:   tombstoned || rec.Tombstoned,
		}
		s.index.UpsertConcept(c)
	})
	r.AllAssociations(func(rec segment.AssociationRecord) {
		a := &concept.Association{
			Source:     rec.Source,
			Target:     rec.Target,
			Tenant:     rec.Tenant,
			Type:       concept.AssocType(rec.Type),
			Weight:     rec.Weight,
			Confidence: rec.Confidence,
			CreatedAt:  time.Unix(0, rec.CreatedUnixNs),
			LastUsedAt: time.Unix(0, rec.LastUsedUnixNs),
		}
		s.index.UpsertAssociation(a)
	})
	return nil
}

// replayWAL applies every valid WAL record to the in-memory index, then
// truncates any torn tail left by a mid-write crash.
func (s *Store) replayWAL() (uint64, error) {
	lastSeq, validLength, err := walog.Replay(s.walPath(), s.applyRecord)
	if err != nil {
		return 0, err
	}
	if info, statErr := os.Stat(s.walPath()); statErr == nil && info.Size() > validLength {
		s.logger.Warn("truncating torn wal tail",
			zap.String("shard", s.shardName),
			zap.Int64("valid_length", validLength),
			zap.Int64("file_size", info.Size()),
		)
		if err := walog.TruncateTailAt(s.walPath(), validLength); err != nil {
			return 0, err
		}
	}
	return lastSeq, nil
}

func (s *Store) applyRecord(rec walog.Record) error {
	switch rec.Op {
	case walog.OpAddConcept, walog.OpUpdateConcept:
		p, err := walog.DecodeConceptPayload(rec.Payload)
		if err != nil {
			return err
		}
		s.index.UpsertConcept(&concept.Concept{
			ID: p.ID, Tenant: p.Tenant, Content: p.Content, Embedding: p.Embedding,
			Metadata: p.Metadata, Strength: p.Strength, Confidence: p.Confidence,
			AccessCount: p.AccessCount, CreatedAt: time.Unix(0, p.CreatedNs), LastAccessAt: time.Unix(0, p.AccessNs),
		})
	case walog.OpAddAssociation, walog.OpStrengthenAssociation:
		p, err := walog.DecodeAssociationPayload(rec.Payload)
		if err != nil {
			return err
		}
		s.index.UpsertAssociation(&concept.Association{
			Source: p.Source, Target: p.Target, Tenant: p.Tenant, Type: concept.AssocType(p.Type),
			Weight: p.Weight, Confidence: p.Confidence, CreatedAt: time.Unix(0, p.CreatedNs), LastUsedAt: time.Unix(0, p.UsedNs),
		})
	case walog.OpPrepare:
		p, err := walog.DecodeTxPayload(rec.Payload)
		if err != nil {
			return err
		}
		s.pending[p.TxID] = p.Ops
	case walog.OpCommit:
		p, err := walog.DecodeTxPayload(rec.Payload)
		if err != nil {
			return err
		}
		ops, ok := s.pending[p.TxID]
		delete(s.pending, p.TxID)
		if ok {
			s.applyTxOps(ops)
		}
	case walog.OpAbort:
		p, err := walog.DecodeTxPayload(rec.Payload)
		if err != nil {
			return err
		}
		delete(s.pending, p.TxID)
	case walog.OpBeginTx, walog.OpPrune:
		// BeginTx is informational only (the coordinator's own log is
		// authoritative for tx id assignment); pruning is re-derived by the
		// maintenance scheduler's next decay/prune pass rather than replayed.
	default:
		return sutraerr.MalformedFrame("unknown wal op during replay")
	}
	return nil
}

// applyTxOps applies a committed transaction's prepared ops directly to the
// in-memory index, used both by live CommitTx and by WAL replay of an
// OpCommit whose matching OpPrepare was seen earlier in the log.
func (s *Store) applyTxOps(ops [][]byte) {
	for _, blob := range ops {
		kind, body := walog.DecodeTxOp(blob)
		switch kind {
		case walog.TxOpConcept:
			p, err := walog.DecodeConceptPayload(body)
			if err != nil {
				continue
			}
			s.index.UpsertConcept(&concept.Concept{
				ID: p.ID, Tenant: p.Tenant, Content: p.Content, Embedding: p.Embedding,
				Metadata: p.Metadata, Strength: p.Strength, Confidence: p.Confidence,
				AccessCount: p.AccessCount, CreatedAt: time.Unix(0, p.CreatedNs), LastAccessAt: time.Unix(0, p.AccessNs),
			})
			if s.vectors != nil && len(p.Embedding) == s.dimension {
				s.vectors.Insert(p.ID, p.Embedding)
			}
		case walog.TxOpAssociation:
			p, err := walog.DecodeAssociationPayload(body)
			if err != nil {
				continue
			}
			s.index.UpsertAssociation(&concept.Association{
				Source: p.Source, Target: p.Target, Tenant: p.Tenant, Type: concept.AssocType(p.Type),
				Weight: p.Weight, Confidence: p.Confidence, CreatedAt: time.Unix(0, p.CreatedNs), LastUsedAt: time.Unix(0, p.UsedNs),
			})
		}
	}
}

func (s *Store) loadVectorIndex() {
	concepts, _ := s.index.Snapshot()
	wantLen := 0
	vectors := make(map[concept.ID][]float32)
	for _, c := range concepts {
		if c.Tombstoned || len(c.Embedding) == 0 {
			continue
		}
		vectors[c.ID] = c.Embedding
		wantLen++
	}

	g, err := vectorindex.Load(s.hnswPath(), s.dimension, s.metric)
	// A persisted hnsw.idx only reflects state as of the last checkpoint or
	// clean close; WAL records replayed since then leave it stale. A length
	// mismatch against the freshly-replayed index is the cheap signal that
	// the persisted file predates the current concept set, so fall through
	// to a full rebuild instead of silently serving a stale ANN index.
	if err == nil && g.Len() == wantLen {
		s.vectors = g
		return
	}
	if err == nil {
		s.logger.Info("persisted hnsw index stale relative to replayed wal, rebuilding",
			zap.String("shard", s.shardName), zap.Int("index_len", g.Len()), zap.Int("want_len", wantLen))
	} else {
		s.logger.Info("rebuilding vector index from segment",
			zap.String("shard", s.shardName), zap.Error(err))
	}
	s.vectors = vectorindex.RebuildFromVectors(s.metric, s.dimension, s.hnswM, s.hnswEfConstruction, vectors)
}

// checkInvariants runs the post-recovery invariant check:
// concept embedding dimensions match the configured dimension, and every
// association's endpoints resolve to a known concept.
func (s *Store) checkInvariants() error {
	concepts, assocs := s.index.Snapshot()
	for _, c := range concepts {
		if !c.Tombstoned && len(c.Embedding) != s.dimension {
			return sutraerr.InvariantViolation(fmt.Sprintf("concept %s has embedding dimension %d, want %d", c.ID, len(c.Embedding), s.dimension))
		}
	}
	for _, a := range assocs {
		if _, ok := s.index.GetConcept(a.Source); !ok {
			return sutraerr.InvariantViolation(fmt.Sprintf("association references unknown source concept %s", a.Source))
		}
		if _, ok := s.index.GetConcept(a.Target); !ok {
			return sutraerr.InvariantViolation(fmt.Sprintf("association references unknown target concept %s", a.Target))
		}
	}
	return nil
}

// ShouldCheckpoint reports whether the WAL has grown past the configured
// threshold and a checkpoint should be triggered.
func (s *Store) ShouldCheckpoint() bool {
	if s.checkpointThreshold <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wal.SizeSinceCheckpoint() >= s.checkpointThreshold
}

// Close flushes the vector index to disk and closes the WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.vectors.Save(s.hnswPath()); err != nil {
		s.logger.Warn("failed to persist hnsw index on close", zap.Error(err))
	}
	return s.wal.Close()
}
