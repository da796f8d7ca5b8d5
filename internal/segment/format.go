// Package segment implements the on-disk segment file format: a fixed
// 128-byte header, a sorted concept table, a content heap, a vector
// block, a sorted association table and a tombstone bitmap. The file is
// read back through a read-only memory mapping (reader.go) so lookups are
// pointer arithmetic into the mapping.
package segment

import (
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/sutra-db/sutra/internal/sutraerr"
)

// Magic identifies a Sutra segment file: "SUTRADAT".
var Magic = [8]byte{'S', 'U', 'T', 'R', 'A', 'D', 'A', 'T'}

// CurrentVersion is the format version written by this build.
const CurrentVersion uint32 = 2

// HeaderSize is the fixed size of the segment header in bytes.
const HeaderSize = 128

// Header is the decoded form of the first HeaderSize bytes of a segment
// file. Encode/Decode convert to/from the exact on-disk byte layout so the
// format never depends on Go struct padding.
type Header struct {
	Version              uint32
	Dimension            uint32
	TenantMode           uint8
	ConceptCount         uint64
	AssociationCount     uint64
	ConceptTableOffset   uint64
	ConceptTableSize     uint64
	AssociationTabOffset uint64
	AssociationTabSize   uint64
	VectorBlockOffset    uint64
	VectorBlockSize      uint64
	ContentHeapOffset    uint64
	ContentHeapSize      uint64
	TombstoneOffset      uint64
	TombstoneSize        uint64
}

// Encode writes h into the on-disk 128-byte layout, appending a CRC32 of the
// header body so a corrupted header is detected before any offset is trusted.
func (h *Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Dimension)
	buf[16] = h.TenantMode
	binary.LittleEndian.PutUint64(buf[24:32], h.ConceptCount)
	binary.LittleEndian.PutUint64(buf[32:40], h.AssociationCount)
	binary.LittleEndian.PutUint64(buf[40:48], h.ConceptTableOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.ConceptTableSize)
	binary.LittleEndian.PutUint64(buf[56:64], h.AssociationTabOffset)
	binary.LittleEndian.PutUint64(buf[64:72], h.AssociationTabSize)
	binary.LittleEndian.PutUint64(buf[72:80], h.VectorBlockOffset)
	binary.LittleEndian.PutUint64(buf[80:88], h.VectorBlockSize)
	binary.LittleEndian.PutUint64(buf[88:96], h.ContentHeapOffset)
	binary.LittleEndian.PutUint64(buf[96:104], h.ContentHeapSize)
	binary.LittleEndian.PutUint64(buf[104:112], h.TombstoneOffset)
	binary.LittleEndian.PutUint64(buf[112:120], h.TombstoneSize)
	crc := crc32.ChecksumIEEE(buf[0:120])
	binary.LittleEndian.PutUint32(buf[120:124], crc)
	return buf
}

// DecodeHeader validates the magic and header CRC before exposing any
// offset; a mismatch marks the whole segment corrupt.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, sutraerr.MalformedFrame("segment file shorter than header")
	}
	var magic [8]byte
	copy(magic[:], buf[0:8])
	if magic != Magic {
		return nil, sutraerr.BadMagic(binary.LittleEndian.Uint32(buf[0:4]))
	}
	wantCRC := binary.LittleEndian.Uint32(buf[120:124])
	gotCRC := crc32.ChecksumIEEE(buf[0:120])
	if wantCRC != gotCRC {
		return nil, sutraerr.CRCMismatch(0)
	}

	h := &Header{
		Version:              binary.LittleEndian.Uint32(buf[8:12]),
		Dimension:            binary.LittleEndian.Uint32(buf[12:16]),
		TenantMode:           buf[16],
		ConceptCount:         binary.LittleEndian.Uint64(buf[24:32]),
		AssociationCount:     binary.LittleEndian.Uint64(buf[32:40]),
		ConceptTableOffset:   binary.LittleEndian.Uint64(buf[40:48]),
		ConceptTableSize:     binary.LittleEndian.Uint64(buf[48:56]),
		AssociationTabOffset: binary.LittleEndian.Uint64(buf[56:64]),
		AssociationTabSize:   binary.LittleEndian.Uint64(buf[64:72]),
		VectorBlockOffset:    binary.LittleEndian.Uint64(buf[72:80]),
		VectorBlockSize:      binary.LittleEndian.Uint64(buf[80:88]),
		ContentHeapOffset:    binary.LittleEndian.Uint64(buf[88:96]),
		ContentHeapSize:      binary.LittleEndian.Uint64(buf[96:104]),
		TombstoneOffset:      binary.LittleEndian.Uint64(buf[104:112]),
		TombstoneSize:        binary.LittleEndian.Uint64(buf[112:120]),
	}
	return h, nil
}

// ConceptRecordSize is the fixed packed size of one concept-table entry.
const ConceptRecordSize = 100

// ConceptRecord is the fixed-size metadata stored in the concept table,
// sorted by ID for binary search.
type ConceptRecord struct {
	ID                 [16]byte
	Tenant             [16]byte
	Strength           float64
	Confidence         float64
	AccessCount        uint64
	CreatedAtUnixNano  int64
	LastAccessUnixNano int64
	ContentOffset      uint64
	ContentLength      uint32
	MetadataOffset     uint64
	MetadataLength     uint32
	Tombstoned         bool
}

func (r *ConceptRecord) Encode(buf []byte) {
	copy(buf[0:16], r.ID[:])
	copy(buf[16:32], r.Tenant[:])
	binary.LittleEndian.PutUint64(buf[32:40], math.Float64bits(r.Strength))
	binary.LittleEndian.PutUint64(buf[40:48], math.Float64bits(r.Confidence))
	binary.LittleEndian.PutUint64(buf[48:56], r.AccessCount)
	binary.LittleEndian.PutUint64(buf[56:64], uint64(r.CreatedAtUnixNano))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(r.LastAccessUnixNano))
	binary.LittleEndian.PutUint64(buf[72:80], r.ContentOffset)
	binary.LittleEndian.PutUint32(buf[80:84], r.ContentLength)
	binary.LittleEndian.PutUint64(buf[84:92], r.MetadataOffset)
	binary.LittleEndian.PutUint32(buf[92:96], r.MetadataLength)
	if r.Tombstoned {
		buf[96] = 1
	} else {
		buf[96] = 0
	}
}

func DecodeConceptRecord(buf []byte) ConceptRecord {
	var r ConceptRecord
	copy(r.ID[:], buf[0:16])
	copy(r.Tenant[:], buf[16:32])
	r.Strength = math.Float64frombits(binary.LittleEndian.Uint64(buf[32:40]))
	r.Confidence = math.Float64frombits(binary.LittleEndian.Uint64(buf[40:48]))
	r.AccessCount = binary.LittleEndian.Uint64(buf[48:56])
	r.CreatedAtUnixNano = int64(binary.LittleEndian.Uint64(buf[56:64]))
	r.LastAccessUnixNano = int64(binary.LittleEndian.Uint64(buf[64:72]))
	r.ContentOffset = binary.LittleEndian.Uint64(buf[72:80])
	r.ContentLength = binary.LittleEndian.Uint32(buf[80:84])
	r.MetadataOffset = binary.LittleEndian.Uint64(buf[84:92])
	r.MetadataLength = binary.LittleEndian.Uint32(buf[92:96])
	r.Tombstoned = buf[96] != 0
	return r
}

// AssociationRecordSize is the fixed packed size of one association-table entry.
const AssociationRecordSize = 84

// AssociationRecord is the fixed-size record stored in the association
// table, sorted lexicographically by (Source, Target, Type).
type AssociationRecord struct {
	Source         [16]byte
	Target         [16]byte
	Tenant         [16]byte
	Type           uint8
	Weight         float64
	Confidence     float64
	CreatedUnixNs  int64
	LastUsedUnixNs int64
}

func (r *AssociationRecord) Encode(buf []byte) {
	copy(buf[0:16], r.Source[:])
	copy(buf[16:32], r.Target[:])
	copy(buf[32:48], r.Tenant[:])
	buf[48] = r.Type
	binary.LittleEndian.PutUint64(buf[52:60], math.Float64bits(r.Weight))
	binary.LittleEndian.PutUint64(buf[60:68], math.Float64bits(r.Confidence))
	binary.LittleEndian.PutUint64(buf[68:76], uint64(r.CreatedUnixNs))
	binary.LittleEndian.PutUint64(buf[76:84], uint64(r.LastUsedUnixNs))
}

func DecodeAssociationRecord(buf []byte) AssociationRecord {
	var r AssociationRecord
	copy(r.Source[:], buf[0:16])
	copy(r.Target[:], buf[16:32])
	copy(r.Tenant[:], buf[32:48])
	r.Type = buf[48]
	r.Weight = math.Float64frombits(binary.LittleEndian.Uint64(buf[52:60]))
	r.Confidence = math.Float64frombits(binary.LittleEndian.Uint64(buf[60:68]))
	r.CreatedUnixNs = int64(binary.LittleEndian.Uint64(buf[68:76]))
	r.LastUsedUnixNs = int64(binary.LittleEndian.Uint64(buf[76:84]))
	return r
}
