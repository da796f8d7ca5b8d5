package segment

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sutra-db/sutra/internal/concept"
)

// ConceptEntry is the in-memory form of everything the writer needs for one
// concept: the fixed metadata plus its variable-length content, metadata map
// and embedding.
type ConceptEntry struct {
	Metadata  map[string]string
	Content   string
	Embedding []float32
	ID        concept.ID
	Tenant    concept.Tenant
	Strength  float64
	Confid    float64
	Access    uint64
	CreatedNs int64
	AccessNs  int64
	Tombstone bool
}

// AssociationEntry is the in-memory form of one association record.
type AssociationEntry struct {
	Source     concept.ID
	Target     concept.ID
	Tenant     concept.Tenant
	Type       concept.AssocType
	Weight     float64
	Confidence float64
	CreatedNs  int64
	UsedNs     int64
}

// WriteSnapshot serializes a complete in-memory graph into a new segment
// file at path and fsyncs it, following the checkpoint procedure: the
// caller (store package) passes a temporary path and performs the atomic
// rename that installs the segment. WriteSnapshot does not rename.
func WriteSnapshot(path string, dimension int, tenantMode bool, concepts []ConceptEntry, assocs []AssociationEntry) error {
	sort.Slice(concepts, func(i, j int) bool {
		return lessID(concepts[i].ID, concepts[j].ID)
	})
	sort.Slice(assocs, func(i, j int) bool {
		return lessAssoc(assocs[i], assocs[j])
	})

	var contentHeap []byte
	conceptTable := make([]byte, 0, len(concepts)*ConceptRecordSize)
	vectorBlock := make([]byte, 0, len(concepts)*dimension*4)
	tomb := roaring.New()

	for i, c := range concepts {
		if len(c.Embedding) != dimension {
			return fmt.Errorf("segment: concept %s has embedding dimension %d, want %d", c.ID, len(c.Embedding), dimension)
		}
		contentOff := uint64(len(contentHeap))
		contentHeap = append(contentHeap, []byte(c.Content)...)

		var metaOff uint64
		var metaLen uint32
		if len(c.Metadata) > 0 {
			encoded, err := msgpack.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("segment: encode metadata: %w", err)
			}
			metaOff = uint64(len(contentHeap))
			metaLen = uint32(len(encoded))
			contentHeap = append(contentHeap, encoded...)
		}

		rec := ConceptRecord{
			ID:                 c.ID,
			Tenant:             c.Tenant,
			Strength:           c.Strength,
			Confidence:         c.Confid,
			AccessCount:        c.Access,
			CreatedAtUnixNano:  c.CreatedNs,
			LastAccessUnixNano: c.AccessNs,
			ContentOffset:      contentOff,
			ContentLength:      uint32(len(c.Content)),
			MetadataOffset:     metaOff,
			MetadataLength:     metaLen,
			Tombstoned:         c.Tombstone,
		}
		recBuf := make([]byte, ConceptRecordSize)
		rec.Encode(recBuf)
		conceptTable = append(conceptTable, recBuf...)

		if c.Tombstone {
			tomb.Add(uint32(i))
		}
		for _, f := range c.Embedding {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
			vectorBlock = append(vectorBlock, b[:]...)
		}
	}

	assocTable := make([]byte, 0, len(assocs)*AssociationRecordSize)
	for _, a := range assocs {
		rec := AssociationRecord{
			Source:         a.Source,
			Target:         a.Target,
			Tenant:         a.Tenant,
			Type:           uint8(a.Type),
			Weight:         a.Weight,
			Confidence:     a.Confidence,
			CreatedUnixNs:  a.CreatedNs,
			LastUsedUnixNs: a.UsedNs,
		}
		buf := make([]byte, AssociationRecordSize)
		rec.Encode(buf)
		assocTable = append(assocTable, buf...)
	}

	tombBytes, err := tomb.ToBytes()
	if err != nil {
		return fmt.Errorf("segment: encode tombstone bitmap: %w", err)
	}

	var tenantMode8 uint8
	if tenantMode {
		tenantMode8 = 1
	}

	offset := uint64(HeaderSize)
	h := &Header{
		Version:              CurrentVersion,
		Dimension:            uint32(dimension),
		TenantMode:           tenantMode8,
		ConceptCount:         uint64(len(concepts)),
		AssociationCount:     uint64(len(assocs)),
		ConceptTableOffset:   offset,
		ConceptTableSize:     uint64(len(conceptTable)),
	}
	offset += h.ConceptTableSize
	h.AssociationTabOffset = offset
	h.AssociationTabSize = uint64(len(assocTable))
	offset += h.AssociationTabSize
	h.VectorBlockOffset = offset
	h.VectorBlockSize = uint64(len(vectorBlock))
	offset += h.VectorBlockSize
	h.ContentHeapOffset = offset
	h.ContentHeapSize = uint64(len(contentHeap))
	offset += h.ContentHeapSize
	h.TombstoneOffset = offset
	h.TombstoneSize = uint64(len(tombBytes))

	headerBytes := h.Encode()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, chunk := range [][]byte{headerBytes[:], conceptTable, assocTable, vectorBlock, contentHeap, tombBytes} {
		if _, err := f.Write(chunk); err != nil {
			return err
		}
	}
	return f.Sync()
}

func lessID(a, b concept.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func lessAssoc(a, b AssociationEntry) bool {
	if c := compareID(a.Source, b.Source); c != 0 {
		return c < 0
	}
	if c := compareID(a.Target, b.Target); c != 0 {
		return c < 0
	}
	return a.Type < b.Type
}

func compareID(a, b concept.ID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
