package wireproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	f := Frame{Opcode: OpLearnConcept, Flags: FlagResponse, RequestID: 42, Payload: []byte("hello")}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestReadFrameRejectsShortHeader(t *testing.T) {
	var buf bytes.Buffer
	// Length prefix says 2 bytes follow, which is less than the 4-byte
	// fixed header every frame must carry.
	buf.Write([]byte{0, 0, 0, 2, 0, 0})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}
