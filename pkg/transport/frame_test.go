package transport

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf, &buf)

	frames := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xab}, 4096),
	}
	for _, in := range frames {
		if err := f.WriteFrame(in); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i, want := range frames {
		got, err := f.ReadFrame()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d = %x, want %x", i, got, want)
		}
	}
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf, &buf)
	if err := f.WriteFrame(make([]byte, MaxFrameSize+1)); err == nil {
		t.Fatalf("oversize frame must be rejected")
	}
	if buf.Len() != 0 {
		t.Fatalf("rejected frame leaked %d bytes", buf.Len())
	}
}

func TestReadFrameRejectsOversizeHeader(t *testing.T) {
	var buf bytes.Buffer
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], MaxFrameSize+1)
	buf.Write(lenbuf[:])

	f := NewFramer(&buf, &buf)
	if _, err := f.ReadFrame(); err == nil {
		t.Fatalf("oversize header must be rejected")
	}
}

func TestLastSeenAdvances(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	f1 := NewFramer(c1, c1)
	f2 := NewFramer(c2, c2)

	if !f2.LastSeen().IsZero() {
		t.Fatalf("fresh framer must report zero LastSeen")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- f1.WriteFrame([]byte("x")) }()
	if _, err := f2.ReadFrame(); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("write: %v", err)
	}
	if time.Since(f2.LastSeen()) > time.Minute {
		t.Fatalf("LastSeen not updated: %v", f2.LastSeen())
	}
}
