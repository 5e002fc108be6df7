// Package quic implements the device link over QUIC. Each connection carries
// one bidirectional stream with u32 LE length-prefixed frames; the dialer
// opens the stream, the listener accepts it.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math/big"
	"net"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"voxlink/pkg/transport"
)

const alpn = "voxlink"

type Transport struct {
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

func New() *Transport {
	// Ephemeral self-signed certificate for the listening side. Devices are
	// identified by their opaque identifier at registration, not by TLS.
	cert, _ := selfSignedCert()
	return &Transport{
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		quicConf: &quicgo.Config{},
	}
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, newCh: make(chan *conn, 8), closeCh: make(chan struct{})}
	go ql.acceptLoop(ctx)
	go func() { <-ctx.Done(); _ = ql.Close() }()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true, // identity is established by register, not TLS
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	st, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "")
		return nil, err
	}
	nc := newConn(c, st)
	go func() { <-ctx.Done(); _ = nc.Close() }()
	return nc, nil
}

type listener struct {
	l       *quicgo.Listener
	newCh   chan *conn
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("quic listener closed")
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

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		qc, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		// Stream setup can stall on a misbehaving peer; do it off the loop.
		go func(qc quicgo.Connection) {
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			st, err := qc.AcceptStream(sctx)
			if err != nil {
				_ = qc.CloseWithError(0, "no stream")
				return
			}
			nc := newConn(qc, st)
			select {
			case l.newCh <- nc:
			case <-l.closeCh:
				_ = nc.Close()
			}
		}(qc)
	}
}

type conn struct {
	c  quicgo.Connection
	st quicgo.Stream
	fr *transport.Framer
}

func newConn(c quicgo.Connection, st quicgo.Stream) *conn {
	return &conn{c: c, st: st, fr: transport.NewFramer(st, st)}
}

func (c *conn) SendFrame(b []byte) error   { return c.fr.WriteFrame(b) }
func (c *conn) RecvFrame() ([]byte, error) { return c.fr.ReadFrame() }
func (c *conn) LocalAddr() net.Addr        { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr       { return c.c.RemoteAddr() }

func (c *conn) Close() error {
	_ = c.st.Close()
	return c.c.CloseWithError(0, "")
}

// selfSignedCert generates a short-lived self-signed TLS certificate.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
