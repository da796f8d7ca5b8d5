package segment

import (
	"encoding/binary"
	"math"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	mmap "github.com/edsrzf/mmap-go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/sutraerr"
)

// Reader exposes read-only, zero-copy access to a segment file via a
// read-only memory mapping. All lookups are pointer
// arithmetic/binary search into the mapping; nothing is copied eagerly.
type Reader struct {
	file      *os.File
	data      mmap.MMap
	header    *Header
	tombstone *roaring.Bitmap
}

// Open memory-maps the segment file at path and validates its header. If
// the file does not exist, an empty segment for the given dimension is
// synthesized by the caller (store package), not here.
func Open(path string, wantDimension int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, os.ErrNotExist
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	h, err := DecodeHeader(m)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	if wantDimension > 0 && int(h.Dimension) != wantDimension {
		m.Unmap()
		f.Close()
		return nil, sutraerr.LoadDimensionMismatch(int(h.Dimension), wantDimension)
	}

	tomb := roaring.New()
	if h.TombstoneSize > 0 {
		tombBytes := m[h.TombstoneOffset : h.TombstoneOffset+h.TombstoneSize]
		if _, err := tomb.FromBuffer(tombBytes); err != nil {
			m.Unmap()
			f.Close()
			return nil, err
		}
	}

	return &Reader{file: f, data: m, header: h, tombstone: tomb}, nil
}

// Close unmaps the segment and closes the underlying file descriptor.
func (r *Reader) Close() error {
	if err := r.data.Unmap(); err != nil {
		return err
	}
	return r.file.Close()
}

func (r *Reader) Header() *Header { return r.header }

// ConceptCount returns the number of concept-table entries (tombstoned
// entries included; tombstones carry forward through checkpoints).
func (r *Reader) ConceptCount() int { return int(r.header.ConceptCount) }

func (r *Reader) conceptRecordAt(i int) ConceptRecord {
	off := r.header.ConceptTableOffset + uint64(i)*ConceptRecordSize
	return DecodeConceptRecord(r.data[off : off+ConceptRecordSize])
}

// FindConcept does a binary search over the sorted concept table for id,
// returning the record and its slot index (used by the tombstone bitmap).
func (r *Reader) FindConcept(id concept.ID) (ConceptRecord, int, bool) {
	n := int(r.header.ConceptCount)
	idx := sort.Search(n, func(i int) bool {
		rec := r.conceptRecordAt(i)
		return !lessID(rec.ID, id)
	})
	if idx >= n {
		return ConceptRecord{}, -1, false
	}
	rec := r.conceptRecordAt(idx)
	if rec.ID != id {
		return ConceptRecord{}, -1, false
	}
	return rec, idx, true
}

// AllConcepts streams every concept-table record in id order.
func (r *Reader) AllConcepts(fn func(slot int, rec ConceptRecord)) {
	n := int(r.header.ConceptCount)
	for i := 0; i < n; i++ {
		fn(i, r.conceptRecordAt(i))
	}
}

// IsTombstoned reports whether the concept at the given table slot is
// marked deleted in the tombstone bitmap.
func (r *Reader) IsTombstoned(slot int) bool {
	return r.tombstone.Contains(uint32(slot))
}

// Content returns the UTF-8 content body referenced by rec.
func (r *Reader) Content(rec ConceptRecord) string {
	if rec.ContentLength == 0 {
		return ""
	}
	start := r.header.ContentHeapOffset + rec.ContentOffset
	return string(r.data[start : start+uint64(rec.ContentLength)])
}

// Metadata decodes the msgpack-encoded metadata map referenced by rec.
func (r *Reader) Metadata(rec ConceptRecord) (map[string]string, error) {
	if rec.MetadataLength == 0 {
		return nil, nil
	}
	start := r.header.ContentHeapOffset + rec.MetadataOffset
	raw := r.data[start : start+uint64(rec.MetadataLength)]
	var m map[string]string
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Embedding returns the embedding vector for the concept at table slot idx,
// read directly out of the mmap without an intermediate copy of the file.
func (r *Reader) Embedding(idx int, dimension int) []float32 {
	start := r.header.VectorBlockOffset + uint64(idx*dimension*4)
	out := make([]float32, dimension)
	for i := 0; i < dimension; i++ {
		bits := binary.LittleEndian.Uint32(r.data[start+uint64(i*4) : start+uint64(i*4)+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// AssociationCount returns the number of association-table entries.
func (r *Reader) AssociationCount() int { return int(r.header.AssociationCount) }

func (r *Reader) associationRecordAt(i int) AssociationRecord {
	off := r.header.AssociationTabOffset + uint64(i)*AssociationRecordSize
	return DecodeAssociationRecord(r.data[off : off+AssociationRecordSize])
}

// AllAssociations streams every association-table record in sorted order.
func (r *Reader) AllAssociations(fn func(rec AssociationRecord)) {
	n := int(r.header.AssociationCount)
	for i := 0; i < n; i++ {
		fn(r.associationRecordAt(i))
	}
}

// FindAssociation does a binary search over the sorted association table.
func (r *Reader) FindAssociation(src, tgt concept.ID, typ concept.AssocType) (AssociationRecord, bool) {
	n := int(r.header.AssociationCount)
	idx := sort.Search(n, func(i int) bool {
		rec := r.associationRecordAt(i)
		return !lessAssoc(AssociationEntry{Source: rec.Source, Target: rec.Target, Type: concept.AssocType(rec.Type)},
			AssociationEntry{Source: src, Target: tgt, Type: typ})
	})
	if idx >= n {
		return AssociationRecord{}, false
	}
	rec := r.associationRecordAt(idx)
	if rec.Source == src && rec.Target == tgt && concept.AssocType(rec.Type) == typ {
		return rec, true
	}
	return AssociationRecord{}, false
}
