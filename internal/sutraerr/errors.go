// Package sutraerr defines the closed error taxonomy used across the storage
// engine. Every error surfaced to a wire-protocol caller is one of the kinds
// defined here so the framing layer can translate it into a {code, message,
// details} payload without a side lookup table.
package sutraerr

import (
	"errors"
	"fmt"
)

// Kind identifies which bucket of the taxonomy an error belongs to. The
// bucket determines how the runtime treats the error: retried internally,
// surfaced to the caller, or fatal for the shard.
type Kind uint8

const (
	// KindValidation covers content too large, dimension mismatch, unknown
	// type, depth/limit exceeded. Reported to the caller, no state change.
	KindValidation Kind = iota + 1
	// KindNotFound covers absent concepts, associations, or nodes.
	KindNotFound
	// KindConflict covers tenant mismatch and duplicate non-idempotent ops.
	KindConflict
	// KindTransient covers peer unreachable and lock-acquisition timeouts.
	// Retried internally up to the request deadline; surfaced if it expires.
	KindTransient
	// KindDurability covers WAL write failure and disk-full conditions.
	// Fatal for the operation; the shard keeps serving reads.
	KindDurability
	// KindCorruption covers CRC mismatch outside the recoverable WAL tail,
	// segment magic mismatch, and dimension mismatch on load. Fatal for the
	// shard: it is marked unavailable and the master is notified.
	KindCorruption
	// KindProtocol covers unknown opcode, malformed frame, oversized
	// message. A frame that is oversized or shorter than its header ends
	// the connection without a response; an unknown opcode or an
	// undecodable payload is answered with an error response and the
	// connection stays open.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindDurability:
		return "durability"
	case KindCorruption:
		return "corruption"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is the concrete type backing every error this engine returns across
// package boundaries. Code is a short machine-readable token stable across
// releases (used on the wire); Details carries optional structured context.
type Error struct {
	Cause   error
	Details map[string]any
	Code    string
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, sutraerr.LockTimeout()) style checks against
// the constructors below by comparing Kind and Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newErr(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// Validation-kind constructors.
func DimensionMismatch(got, want int) *Error {
	e := newErr(KindValidation, "dimension_mismatch", "embedding dimension does not match store configuration", nil)
	e.Details = map[string]any{"got": got, "want": want}
	return e
}

func ContentTooLarge(size, max int) *Error {
	e := newErr(KindValidation, "content_too_large", "content exceeds maximum size", nil)
	e.Details = map[string]any{"size": size, "max": max}
	return e
}

func InvalidAssociationType(t string) *Error {
	e := newErr(KindValidation, "invalid_type", "unknown association type", nil)
	e.Details = map[string]any{"type": t}
	return e
}

func DepthExceeded(depth, max int) *Error {
	e := newErr(KindValidation, "depth_exceeded", "traversal depth exceeds maximum", nil)
	e.Details = map[string]any{"depth": depth, "max": max}
	return e
}

func KExceeded(k, max int) *Error {
	e := newErr(KindValidation, "k_exceeded", "vector search k exceeds maximum", nil)
	e.Details = map[string]any{"k": k, "max": max}
	return e
}

func BatchTooLarge(n, max int) *Error {
	e := newErr(KindValidation, "batch_too_large", "batch exceeds maximum item count", nil)
	e.Details = map[string]any{"n": n, "max": max}
	return e
}

func MessageTooLarge(n, max int) *Error {
	e := newErr(KindValidation, "message_too_large", "wire message exceeds maximum size", nil)
	e.Details = map[string]any{"n": n, "max": max}
	return e
}

// NotFound-kind constructors.
func UnknownConcept(id string) *Error {
	e := newErr(KindNotFound, "unknown_concept", "concept does not exist", nil)
	e.Details = map[string]any{"id": id}
	return e
}

func UnknownAssociation(src, tgt, typ string) *Error {
	e := newErr(KindNotFound, "unknown_association", "association does not exist", nil)
	e.Details = map[string]any{"src": src, "tgt": tgt, "type": typ}
	return e
}

func NodeNotFound(id string) *Error {
	e := newErr(KindNotFound, "node_not_found", "storage node not registered", nil)
	e.Details = map[string]any{"id": id}
	return e
}

// Conflict-kind constructors.
func TenantMismatch(src, tgt string) *Error {
	e := newErr(KindConflict, "tenant_mismatch", "source and target concepts belong to different tenants", nil)
	e.Details = map[string]any{"src": src, "tgt": tgt}
	return e
}

// Transient-kind constructors.
func PeerUnreachable(addr string, cause error) *Error {
	return newErr(KindTransient, "peer_unreachable", fmt.Sprintf("peer %s unreachable", addr), cause)
}

func LockTimeout() *Error {
	return newErr(KindTransient, "lock_timeout", "lock acquisition timed out", nil)
}

// Durability-kind constructors.
func WALWriteFailed(cause error) *Error {
	return newErr(KindDurability, "wal_write_failed", "write-ahead log append failed", cause)
}

func DiskFull(cause error) *Error {
	return newErr(KindDurability, "disk_full", "no space left writing durable state", cause)
}

// Corruption-kind constructors.
func CRCMismatch(offset int64) *Error {
	e := newErr(KindCorruption, "crc_mismatch", "checksum mismatch outside recoverable WAL tail", nil)
	e.Details = map[string]any{"offset": offset}
	return e
}

func BadMagic(got uint32) *Error {
	e := newErr(KindCorruption, "bad_magic", "segment header magic mismatch", nil)
	e.Details = map[string]any{"got": got}
	return e
}

func LoadDimensionMismatch(got, want int) *Error {
	e := newErr(KindCorruption, "load_dimension_mismatch", "segment dimension does not match configuration on load", nil)
	e.Details = map[string]any{"got": got, "want": want}
	return e
}

// InvariantViolation reports a failure of the post-recovery invariant
// check.
func InvariantViolation(reason string) *Error {
	return newErr(KindCorruption, "invariant_violation", reason, nil)
}

// Protocol-kind constructors.
func UnknownOpcode(op byte) *Error {
	e := newErr(KindProtocol, "unknown_opcode", "unrecognized opcode", nil)
	e.Details = map[string]any{"opcode": op}
	return e
}

func MalformedFrame(reason string) *Error {
	return newErr(KindProtocol, "malformed_frame", reason, nil)
}

// As reports whether err (or any error it wraps) is a *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf extracts the Kind of err if it is a *Error, defaulting to 0.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return 0
}
