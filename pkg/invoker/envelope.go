package invoker

import "encoding/json"

// envelope is the request-direction wire wrapper Refer and Exporter use to
// multiplex many (alias, method) targets over one Channel's opaque
// per-frame payload (spec §3 Request: "interface name, alias ..., method
// name"). It is always JSON regardless of the configured business Codec:
// routing metadata is an invoker-level concern, not one of the pluggable
// codec's (spec §6 "codec contract" covers argument encoding only). Args
// is already codec-encoded by the caller, so the envelope never needs to
// know the business codec's wire shape.
type envelope struct {
	Alias  string `json:"alias"`
	Method string `json:"method"`
	Args   []byte `json:"args"`
}

func encodeEnvelope(alias, method string, args []byte) ([]byte, error) {
	return json.Marshal(envelope{Alias: alias, Method: method, Args: args})
}

func decodeEnvelope(payload []byte) (envelope, error) {
	var e envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return envelope{}, err
	}
	return e, nil
}
