// Package codec defines the wire contract shared by every transport plugin
// (spec §6): framed, length-prefixed messages carrying a request id,
// direction, flags, and an opaque payload, plus the Codec plugin contract
// that turns a typed Request/Response into that payload and back.
//
// Concrete byte-level layouts are out of scope (spec Non-goals) beyond this
// abstract contract and two reference codecs (JSON, protobuf) that satisfy
// it, matching the "codecs are referenced by name via the Plugin Registry"
// requirement.
package codec

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

// Direction distinguishes the three frame kinds carried on a Channel.
type Direction uint8

const (
	DirectionRequest Direction = iota
	DirectionResponse
	DirectionHeartbeat
)

// Flag bits carried in a Frame's Flags field.
const (
	FlagNone       uint8 = 0
	FlagError      uint8 = 1 << 0
	FlagOneway     uint8 = 1 << 1
	FlagCompressed uint8 = 1 << 2
)

// Frame is the abstract wire unit: every concrete codec must be able to
// produce and consume one. RequestID uniqueness scope is a single Channel
// (spec §6).
type Frame struct {
	RequestID uint64
	Direction Direction
	Flags     uint8
	Payload   []byte
}

// IsError reports whether the frame carries an application/serialization
// error rather than a normal payload.
func (f Frame) IsError() bool { return f.Flags&FlagError != 0 }

// Codec is the plugin contract named in the Plugin Registry (spec §6):
// encode a typed message into a Frame payload, decode a Frame payload back
// into a typed message. Name identifies the codec for wire negotiation and
// registry lookup (grounded on the tagged-interface pattern, spec §9).
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// jsonCodecImpl is the default, always-available codec: encoding/json against
// any Go value. It requires no generated code, so it is the fallback when
// no protobuf schema is registered for a method.
type jsonCodecImpl struct{}

// JSON is the reference JSON Codec plugin.
var JSON Codec = jsonCodecImpl{}

func (jsonCodecImpl) Name() string { return "json" }

func (jsonCodecImpl) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeSerialization, "json encode failed", err)
	}
	return b, nil
}

func (jsonCodecImpl) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return joyerr.Wrap(joyerr.CodeSerialization, "json decode failed", err)
	}
	return nil
}

// protoCodecImpl is the binary Codec plugin backed by
// google.golang.org/protobuf, matching the framed length-prefixed wire
// contract with dense encoding for generated message types.
type protoCodecImpl struct{}

// Protobuf is the reference protobuf Codec plugin. v must implement
// proto.Message; any other type is a SerializationError.
var Protobuf Codec = protoCodecImpl{}

func (protoCodecImpl) Name() string { return "protobuf" }

func (protoCodecImpl) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, joyerr.New(joyerr.CodeSerialization, fmt.Sprintf("protobuf codec: %T does not implement proto.Message", v))
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeSerialization, "protobuf encode failed", err)
	}
	return b, nil
}

func (protoCodecImpl) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return joyerr.New(joyerr.CodeSerialization, fmt.Sprintf("protobuf codec: %T does not implement proto.Message", v))
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return joyerr.Wrap(joyerr.CodeSerialization, "protobuf decode failed", err)
	}
	return nil
}

// frameHeaderSize is id(8) + direction(1) + flags(1) + payload length(4).
const frameHeaderSize = 8 + 1 + 1 + 4

// WriteFrame writes f to w as a length-prefixed frame: a uint32 total
// length, then the fixed header, then the payload. One frame is one
// bufio-buffered write so a Channel's serialized send path (spec §5) never
// interleaves partial frames from concurrent callers.
func WriteFrame(w io.Writer, f Frame) error {
	buf := make([]byte, frameHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint64(buf[0:8], f.RequestID)
	buf[8] = byte(f.Direction)
	buf[9] = f.Flags
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(f.Payload)))
	copy(buf[frameHeaderSize:], f.Payload)

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))

	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
		defer bw.Flush()
	}
	if _, err := bw.Write(lenPrefix[:]); err != nil {
		return joyerr.Wrap(joyerr.CodeTransport, "frame length write failed", err)
	}
	if _, err := bw.Write(buf); err != nil {
		return joyerr.Wrap(joyerr.CodeTransport, "frame body write failed", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, err // EOF propagates as-is so callers can distinguish clean close
	}
	total := binary.BigEndian.Uint32(lenPrefix[:])
	if total < frameHeaderSize {
		return Frame{}, joyerr.New(joyerr.CodeSerialization, "frame shorter than header")
	}

	buf := make([]byte, total)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Frame{}, joyerr.Wrap(joyerr.CodeTransport, "frame body read failed", err)
	}

	f := Frame{
		RequestID: binary.BigEndian.Uint64(buf[0:8]),
		Direction: Direction(buf[8]),
		Flags:     buf[9],
	}
	payloadLen := binary.BigEndian.Uint32(buf[10:14])
	if int(frameHeaderSize+payloadLen) != len(buf) {
		return Frame{}, joyerr.New(joyerr.CodeSerialization, "frame payload length mismatch")
	}
	f.Payload = buf[frameHeaderSize:]
	return f, nil
}
