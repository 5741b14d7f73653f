package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

type echoPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	in := echoPayload{Name: "ping", Count: 3}
	b, err := JSON.Marshal(in)
	require.NoError(t, err)

	var out echoPayload
	require.NoError(t, JSON.Unmarshal(b, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, "json", JSON.Name())
}

func TestProtobufCodec_RejectsNonProtoMessage(t *testing.T) {
	_, err := Protobuf.Marshal(echoPayload{Name: "x"})
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeSerialization, je.Code)
}

func TestFrame_WriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{RequestID: 42, Direction: DirectionRequest, Flags: FlagNone, Payload: []byte("hello")}

	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.RequestID, got.RequestID)
	assert.Equal(t, f.Direction, got.Direction)
	assert.Equal(t, f.Payload, got.Payload)
	assert.False(t, got.IsError())
}

func TestFrame_MultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{RequestID: 1, Direction: DirectionRequest, Payload: []byte("a")}))
	require.NoError(t, WriteFrame(&buf, Frame{RequestID: 2, Direction: DirectionResponse, Flags: FlagError, Payload: []byte("b")}))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.RequestID)
	assert.False(t, first.IsError())

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.RequestID)
	assert.True(t, second.IsError())

	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_ShortHeaderIsSerializationError(t *testing.T) {
	var buf bytes.Buffer
	// total length smaller than the header itself
	buf.Write([]byte{0, 0, 0, 1})
	buf.WriteByte(0)

	_, err := ReadFrame(&buf)
	require.Error(t, err)
	je, ok := joyerr.As(err)
	require.True(t, ok)
	assert.Equal(t, joyerr.CodeSerialization, je.Code)
}
