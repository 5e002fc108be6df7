// Package transport defines the message-oriented link between devices and the
// relay: full-duplex, ordered, reliable while connected. Nothing survives a
// disconnect; reconnect handling lives in DialLoop.
package transport

import (
	"context"
	"net"
)

// Kind identifies the link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindQUIC
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// MaxFrameSize bounds a single frame. Voice clips are short; anything larger
// is treated as a protocol violation.
const MaxFrameSize = 1 << 24

// Conn is a bidirectional frame stream. Exactly one reader and one writer
// goroutine are expected; SendFrame is safe for concurrent use.
type Conn interface {
	// SendFrame sends one message frame as opaque bytes.
	SendFrame([]byte) error
	// RecvFrame blocks for the next frame and returns its bytes.
	RecvFrame() ([]byte, error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	// Close closes the link; a blocked RecvFrame returns with an error.
	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until an inbound connection is available or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	// Close stops the listener and unblocks Accept.
	Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
	Kind() Kind
	// Listen starts accepting inbound connections on address.
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial creates an outbound connection.
	Dial(ctx context.Context, address string) (Conn, error)
}
