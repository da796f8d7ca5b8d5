package wireproto

import (
	"encoding/binary"
	"io"

	"github.com/sutra-db/sutra/internal/storagenode"
	"github.com/sutra-db/sutra/internal/sutraerr"
)

// fixedHeaderLen is the opcode+flags+request-id portion that follows the
// u32 length prefix and precedes the payload.
const fixedHeaderLen = 4

// Frame is one wire message with its length prefix already stripped.
type Frame struct {
	Payload   []byte
	Opcode    Opcode
	Flags     byte
	RequestID uint16
}

// IsResponse reports whether f carries FlagResponse.
func (f Frame) IsResponse() bool { return f.Flags&FlagResponse != 0 }

// IsError reports whether f carries FlagError.
func (f Frame) IsError() bool { return f.Flags&FlagError != 0 }

// ReadFrame reads one length-prefixed frame from r, rejecting anything
// larger than storagenode.MaxMessageBytes before allocating a buffer for it.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if int64(length) > storagenode.MaxMessageBytes {
		return Frame{}, sutraerr.MessageTooLarge(int(length), storagenode.MaxMessageBytes)
	}
	if length < fixedHeaderLen {
		return Frame{}, sutraerr.MalformedFrame("frame shorter than the fixed opcode/flags/request-id header")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}

	return Frame{
		Opcode:    Opcode(body[0]),
		Flags:     body[1],
		RequestID: binary.BigEndian.Uint16(body[2:4]),
		Payload:   body[4:],
	}, nil
}

// WriteFrame writes f to w as a single length-prefixed message.
func WriteFrame(w io.Writer, f Frame) error {
	body := make([]byte, fixedHeaderLen+len(f.Payload))
	body[0] = byte(f.Opcode)
	body[1] = f.Flags
	binary.BigEndian.PutUint16(body[2:4], f.RequestID)
	copy(body[4:], f.Payload)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// response builds a success response frame echoing req's opcode and id.
func response(req Frame, payload []byte) Frame {
	return Frame{Opcode: req.Opcode, Flags: FlagResponse, RequestID: req.RequestID, Payload: payload}
}

// errorResponse builds an error response frame from err, translating it
// through the closed sutraerr taxonomy into the wire {code, message,
// details} shape.
func errorResponse(req Frame, err error) Frame {
	payload := encodeError(err)
	return Frame{Opcode: req.Opcode, Flags: FlagResponse | FlagError, RequestID: req.RequestID, Payload: payload}
}
