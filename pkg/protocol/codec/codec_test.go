package codec

import (
	"bytes"
	"testing"

	"voxlink/pkg/protocol"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if c := r.Get("json"); c == nil || c.ContentType() != "application/json" {
		t.Fatalf("json lookup failed")
	}
	if c := r.Get("application/cbor"); c == nil || c.Name() != "cbor" {
		t.Fatalf("cbor lookup by content type failed")
	}
	if r.Get("msgpack") != nil {
		t.Fatalf("unknown codec must return nil")
	}
}

func TestAudioPayloadSurvivesBothCodecs(t *testing.T) {
	audio := []byte{0x00, 0x01, 0x7f, 0x80, 0xfe, 0xff}
	in := protocol.Envelope{
		Type:        protocol.TypeVoiceMessage,
		RecipientID: "dev-b",
		MessageID:   "m1",
		AudioData:   audio,
		Timestamp:   1700000000000,
	}
	for _, c := range []Codec{JSON(), CBOR()} {
		b, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s marshal: %v", c.Name(), err)
		}
		var out protocol.Envelope
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", c.Name(), err)
		}
		if !bytes.Equal(out.AudioData, audio) || out.MessageID != "m1" || out.Timestamp != in.Timestamp {
			t.Fatalf("%s mangled the envelope: %+v", c.Name(), out)
		}
	}
}

func TestCBORDeterministic(t *testing.T) {
	env := protocol.Envelope{Type: protocol.TypeRegister, DeviceID: "d", Friends: []string{"a", "b"}}
	c := CBOR()
	b1, _ := c.Marshal(env)
	b2, _ := c.Marshal(env)
	if !bytes.Equal(b1, b2) {
		t.Fatalf("canonical encoding must be stable")
	}
}
