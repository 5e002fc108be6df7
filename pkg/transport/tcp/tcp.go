// Package tcp implements the device link over plain TCP with u32 LE
// length-prefixed frames.
package tcp

import (
	"context"
	"errors"
	"net"

	"voxlink/pkg/transport"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, newCh: make(chan *conn, 8), closeCh: make(chan struct{})}
	go tl.acceptLoop()
	go func() { <-ctx.Done(); _ = tl.Close() }()
	return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	d := &net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

type listener struct {
	l       net.Listener
	newCh   chan *conn
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("tcp listener closed")
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	select {
	case <-l.closeCh:
	default:
		close(l.closeCh)
	}
	return l.l.Close()
}

func (l *listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		nc := newConn(c)
		select {
		case l.newCh <- nc:
		default:
			_ = nc.Close()
		}
	}
}

type conn struct {
	c  net.Conn
	fr *transport.Framer
}

func newConn(c net.Conn) *conn {
	return &conn{c: c, fr: transport.NewFramer(c, c)}
}

func (c *conn) SendFrame(b []byte) error    { return c.fr.WriteFrame(b) }
func (c *conn) RecvFrame() ([]byte, error)  { return c.fr.ReadFrame() }
func (c *conn) LocalAddr() net.Addr         { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr        { return c.c.RemoteAddr() }
func (c *conn) Close() error                { return c.c.Close() }
