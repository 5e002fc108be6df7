package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Framer carries length-prefixed frames (u32 LE) over any byte stream. All
// stream transports share it so the wire format stays identical across links.
type Framer struct {
	mu       sync.Mutex
	br       *bufio.Reader
	bw       *bufio.Writer
	lastSeen atomic.Int64 // unix nano
}

func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{br: bufio.NewReader(r), bw: bufio.NewWriter(w)}
}

var errFrameTooLarge = errors.New("invalid frame size")

func (f *Framer) WriteFrame(b []byte) error {
	if len(b) > MaxFrameSize {
		return errFrameTooLarge
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := f.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := f.bw.Write(b); err != nil {
		return err
	}
	if err := f.bw.Flush(); err != nil {
		return err
	}
	f.lastSeen.Store(time.Now().UnixNano())
	return nil
}

func (f *Framer) ReadFrame() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(f.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n < 0 || n > MaxFrameSize {
		return nil, errFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, err
	}
	f.lastSeen.Store(time.Now().UnixNano())
	return buf, nil
}

// LastSeen reports the time of the last successful frame exchange.
func (f *Framer) LastSeen() time.Time {
	n := f.lastSeen.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
