// Package mem is an in-process transport over net.Pipe. Useful for tests and
// for running a relay and devices inside one process.
package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"voxlink/pkg/transport"
)

type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

// Default is the process-wide instance used when relay and device share a
// process (wire kind "mem").
var Default = New()

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan *conn, 8), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		<-ctx.Done()
		_ = l.Close()
		t.mu.Lock()
		delete(t.listeners, name)
		t.mu.Unlock()
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, errors.New("mem: no such listener")
	}
	c1, c2 := net.Pipe()
	srv := newConn(c1)
	cli := newConn(c2)
	select {
	case l.newCh <- srv:
	default:
		_ = srv.Close()
		_ = cli.Close()
		return nil, errors.New("mem: accept queue full")
	}
	go func() { <-ctx.Done(); _ = cli.Close() }()
	return cli, nil
}

type listener struct {
	name    string
	newCh   chan *conn
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("mem listener closed")
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
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type conn struct {
	c  net.Conn
	fr *transport.Framer
}

func newConn(c net.Conn) *conn {
	return &conn{c: c, fr: transport.NewFramer(c, c)}
}

func (c *conn) SendFrame(b []byte) error   { return c.fr.WriteFrame(b) }
func (c *conn) RecvFrame() ([]byte, error) { return c.fr.ReadFrame() }
func (c *conn) LocalAddr() net.Addr        { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr       { return c.c.RemoteAddr() }
func (c *conn) Close() error               { return c.c.Close() }
