package codec

import (
	cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec (RFC 8949, core profile). Audio
// bytes are carried as byte strings, avoiding the base64 overhead of JSON.
func CBOR() Codec {
	// Canonical options never fail to build.
	em, _ := cbor.CanonicalEncOptions().EncMode()
	dm, _ := cbor.DecOptions{}.DecMode()
	return cborCodec{enc: em, dec: dm}
}

func (c cborCodec) Name() string                       { return "cbor" }
func (c cborCodec) ContentType() string                { return "application/cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
