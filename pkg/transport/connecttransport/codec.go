// Package connecttransport implements the Transport plugin contract
// (spec §6) over connectrpc.com/connect's bidi-streaming call, running
// over plain h2c (HTTP/2 without TLS) exactly as the teacher's gateway
// serves its own Connect-RPC surface. Like grpctransport, it tunnels one
// Channel per stream, carrying joyrpc's own length-prefixed frames as
// opaque byte messages rather than a generated protobuf request/response
// pair.
package connecttransport

import "fmt"

const codecName = "joyrpc-raw"

// frameMsg is the only message type this transport's Codec ever
// marshals or unmarshals: one opaque, already-framed joyrpc payload
// chunk, written and read verbatim.
type frameMsg []byte

// rawCodec is a connect.Codec that passes bytes through unchanged.
type rawCodec struct{}

func (rawCodec) Name() string { return codecName }

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*frameMsg)
	if !ok {
		return nil, fmt.Errorf("connecttransport: rawCodec cannot marshal %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*frameMsg)
	if !ok {
		return fmt.Errorf("connecttransport: rawCodec cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}
