package codec

import (
	"encoding/json"
)

type jsonCodec struct{}

// JSON returns the JSON codec (RFC 8259). This is the contract's canonical
// encoding; audio bytes appear as base64 strings.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string                         { return "json" }
func (jsonCodec) ContentType() string                  { return "application/json" }
func (jsonCodec) Marshal(v any) ([]byte, error)        { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error   { return json.Unmarshal(data, v) }
