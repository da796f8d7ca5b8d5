// Package walog implements the per-shard write-ahead log:
// length-prefixed, CRC-tagged records, fsynced at commit boundaries,
// replayed on recovery with replay stopping at the first invalid or
// truncated record.
package walog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/sutra-db/sutra/internal/sutraerr"
)

// Op identifies the kind of mutation a WAL record carries.
type Op uint8

const (
	OpAddConcept Op = iota + 1
	OpUpdateConcept
	OpAddAssociation
	OpStrengthenAssociation
	OpPrune
	OpBeginTx
	OpPrepare
	OpCommit
	OpAbort
)

// RecordHeaderSize is the size of the fixed portion preceding the payload:
// u32 length | u64 seq | u8 op | u16 payload_len.
const RecordHeaderSize = 4 + 8 + 1 + 2

// TrailerSize is the size of the CRC32 trailer following the payload.
const TrailerSize = 4

// Record is one decoded WAL entry.
type Record struct {
	Payload []byte
	Seq     uint64
	Op      Op
}

// Encode serializes r into the on-disk record layout. Length covers
// everything after the length field itself (seq, op, payload_len, payload,
// crc), matching "u32 length" prefixing the rest of the record.
func Encode(r Record) []byte {
	body := make([]byte, RecordHeaderSize-4+len(r.Payload)+TrailerSize)
	binary.LittleEndian.PutUint64(body[0:8], r.Seq)
	body[8] = byte(r.Op)
	binary.LittleEndian.PutUint16(body[9:11], uint16(len(r.Payload)))
	copy(body[11:11+len(r.Payload)], r.Payload)
	crc := crc32.ChecksumIEEE(r.Payload)
	binary.LittleEndian.PutUint32(body[11+len(r.Payload):], crc)

	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

// DecodeBody parses the portion of a record after the length prefix
// (already stripped by the caller) and validates the payload CRC.
func DecodeBody(body []byte) (Record, error) {
	if len(body) < RecordHeaderSize-4+TrailerSize {
		return Record{}, sutraerr.MalformedFrame("wal record shorter than fixed fields")
	}
	seq := binary.LittleEndian.Uint64(body[0:8])
	op := Op(body[8])
	plen := int(binary.LittleEndian.Uint16(body[9:11]))
	want := RecordHeaderSize - 4 + plen + TrailerSize
	if len(body) != want {
		return Record{}, sutraerr.MalformedFrame("wal record length does not match payload_len")
	}
	payload := body[11 : 11+plen]
	gotCRC := binary.LittleEndian.Uint32(body[11+plen:])
	wantCRC := crc32.ChecksumIEEE(payload)
	if gotCRC != wantCRC {
		return Record{}, sutraerr.CRCMismatch(0)
	}
	return Record{Seq: seq, Op: op, Payload: payload}, nil
}
