package walog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrUnknownTx is returned by a Commit/Abort call naming a transaction id
// this shard never prepared (or already resolved).
var ErrUnknownTx = errors.New("walog: commit/abort of unknown or already-resolved transaction")

// WAL is a single shard's write-ahead log: an append-only file of
// length-prefixed, CRC-tagged records, flushed with fsync at commit
// boundaries. There is no dedicated writer goroutine: request goroutines
// call Append directly and mu serializes them; reads of the sequence
// counter are lock-free via atomic.
type WAL struct {
	file       *os.File
	metrics    *metrics
	path       string
	mu         sync.Mutex // serializes Append + Close
	nextSeq    atomic.Uint64
	bytesSince atomic.Int64 // bytes appended since the last checkpoint/truncate
}

// Open opens (creating if necessary) the WAL file at path. lastSeq is the
// sequence number of the last record a prior Replay observed (0 if none),
// used to seed the monotonic counter so appends continue without a gap
// (sequence numbers stay strictly monotonic and gap-free per shard).
func Open(path string, lastSeq uint64, shard string, reg prometheus.Registerer) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := &WAL{file: f, path: path, metrics: newMetricsForShard(reg, shard)}
	w.nextSeq.Store(lastSeq + 1)
	info, err := f.Stat()
	if err == nil {
		w.bytesSince.Store(info.Size())
	}
	return w, nil
}

// NextSeq returns the sequence number the next Append call will use,
// without consuming it.
func (w *WAL) NextSeq() uint64 { return w.nextSeq.Load() }

// Append writes one record with the next monotonic sequence number and
// fsyncs before returning, satisfying "records are flushed with fsync at
// commit boundaries". A disk-full or other write failure
// leaves no partial record visible to a subsequent Replay: the OS either
// wrote the full buffer or none of it reached the file's logical length
// before the failed fsync, and Replay's CRC check discards any torn tail.
func (w *WAL) Append(op Op, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.nextSeq.Load()
	rec := Encode(Record{Seq: seq, Op: op, Payload: payload})

	start := time.Now()
	n, err := w.file.Write(rec)
	if err != nil {
		w.metrics.appendErrors.Inc()
		return 0, fmt.Errorf("wal: append: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.metrics.appendErrors.Inc()
		return 0, fmt.Errorf("wal: fsync: %w", err)
	}

	w.nextSeq.Store(seq + 1)
	w.bytesSince.Add(int64(n))
	w.metrics.appends.Inc()
	w.metrics.bytesWritten.Add(float64(n))
	w.metrics.appendSeconds.Observe(time.Since(start).Seconds())
	return seq, nil
}

// SizeSinceCheckpoint reports the WAL file's size since it was created or
// last truncated (Open seeds it with the size already on disk), used to trigger a checkpoint per the configured
// WAL_CHECKPOINT_MB threshold.
func (w *WAL) SizeSinceCheckpoint() int64 { return w.bytesSince.Load() }

// Truncate discards the WAL's contents after a successful checkpoint.
// The caller is expected to
// have already swapped writers to a fresh WAL file; Truncate here resets
// this handle in place for reuse as that fresh file.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.bytesSince.Store(0)
	return nil
}

// Close closes the underlying file. It does not fsync; every Append has
// already fsynced its record before returning.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Replay reads every valid record from the WAL file at path in order,
// calling fn for each. It stops at the first CRC failure or truncated
// length prefix, per "stop at first CRC failure or truncation and truncate
// the WAL there". It returns the sequence number of
// the last valid record observed (0 if none) and the byte offset recovery
// stopped at, which the caller uses to truncate away any torn tail.
func Replay(path string, fn func(Record) error) (lastSeq uint64, validLength int64, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var offset int64
	for {
		var lenBuf [4]byte
		n, rerr := io.ReadFull(f, lenBuf[:])
		if rerr == io.EOF || (rerr == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if rerr != nil {
			// Partial length prefix: truncated tail, stop here.
			break
		}
		bodyLen := binary.LittleEndian.Uint32(lenBuf[:])
		body := make([]byte, bodyLen)
		if _, rerr := io.ReadFull(f, body); rerr != nil {
			// Truncated body: stop here, do not advance offset.
			break
		}

		rec, derr := DecodeBody(body)
		if derr != nil {
			// CRC mismatch or malformed record: stop here.
			break
		}
		if err := fn(rec); err != nil {
			return lastSeq, offset, err
		}
		lastSeq = rec.Seq
		offset += 4 + int64(bodyLen)
	}
	return lastSeq, offset, nil
}

// TruncateTailAt truncates the WAL file at path to length, discarding any
// bytes recovery determined to be an unrecoverable tail.
func TruncateTailAt(path string, length int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(length)
}
