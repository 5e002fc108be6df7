package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voxlink/pkg/config"
	"voxlink/pkg/memkv"
	"voxlink/pkg/protocol"
	"voxlink/pkg/protocol/codec"
	"voxlink/pkg/transport"
)

// maxProtocolStrikes is how many consecutive malformed frames a link may send
// before it is dropped. Any valid frame resets the count.
const maxProtocolStrikes = 8

// Server accepts device links, tracks the directory and routes envelopes.
type Server struct {
	cfg     config.RelayConfig
	tr      transport.Transport
	wire    codec.Codec
	reg     *memkv.Store
	dir     *Directory
	started time.Time
}

func New(cfg config.RelayConfig, tr transport.Transport, wire codec.Codec) *Server {
	reg := memkv.New(memkv.Options{JanitorInterval: time.Minute})
	return &Server{
		cfg:  cfg,
		tr:   tr,
		wire: wire,
		reg:  reg,
		dir:  NewDirectory(reg, time.Duration(cfg.RegistryTTLMin)*time.Minute),
	}
}

// Directory exposes the device directory (status surface, tests).
func (s *Server) Directory() *Directory { return s.dir }

// Run listens for device links until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()
	ln, err := s.tr.Listen(ctx, s.cfg.Listen)
	if err != nil {
		return err
	}
	defer ln.Close()
	defer s.reg.Close()
	zap.L().Info("relay listening",
		zap.Stringer("kind", s.tr.Kind()), zap.String("addr", ln.Addr().String()))

	if s.cfg.HTTPListen != "" {
		go s.serveHTTP(ctx)
	}

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Warn("accept failed", zap.Error(err))
			continue
		}
		go s.serveConn(ctx, conn)
	}
}

// serveConn owns one device link from accept to teardown.
func (s *Server) serveConn(ctx context.Context, conn transport.Conn) {
	log := zap.L().With(zap.String("remote", conn.RemoteAddr().String()))
	log.Info("link accepted")

	send := func(env protocol.Envelope) error {
		b, err := s.wire.Marshal(env)
		if err != nil {
			return err
		}
		return conn.SendFrame(b)
	}

	var cl *client
	defer func() {
		s.dir.Unregister(cl)
		conn.Close()
		log.Info("link closed")
	}()

	strikes := 0
	fault := func(detail string) bool {
		strikes++
		log.Warn("protocol error", zap.String("detail", detail), zap.Int("strikes", strikes))
		_ = send(protocol.Envelope{Type: protocol.TypeError, Detail: detail})
		return strikes >= maxProtocolStrikes
	}

	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := conn.RecvFrame()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := s.wire.Unmarshal(frame, &env); err != nil {
			if fault("undecodable frame") {
				return
			}
			continue
		}
		if err := env.Validate(); err != nil {
			if fault(err.Error()) {
				return
			}
			continue
		}

		switch env.Type {
		case protocol.TypeRegister:
			cl = s.register(env, send, log)

		case protocol.TypePing:
			if cl != nil {
				s.dir.Touch(cl.id)
			}
			_ = send(protocol.Envelope{Type: protocol.TypePong, ServerTime: s.now()})

		case protocol.TypeVoiceMessage, protocol.TypeMessageHeard,
			protocol.TypeRecordingStarted, protocol.TypeRecordingStopped:
			if cl == nil {
				if fault("not registered") {
					return
				}
				continue
			}
			s.route(cl, env, send)

		default:
			// relay-originated types have no business arriving here
			if fault("unexpected type " + string(env.Type)) {
				return
			}
			continue
		}
		strikes = 0
	}
}

func (s *Server) register(env protocol.Envelope, send func(protocol.Envelope) error, log *zap.Logger) *client {
	cl, online := s.dir.Register(env.DeviceID, env.DeviceName, env.Friends, send)
	log.Info("device registered",
		zap.String("device", env.DeviceID),
		zap.String("name", env.DeviceName),
		zap.Int("friends", len(env.Friends)),
		zap.Int("friends_online", len(online)))

	_ = send(protocol.Envelope{Type: protocol.TypeRegistered, DeviceID: env.DeviceID, ServerTime: s.now()})
	_ = send(protocol.Envelope{Type: protocol.TypeFriendsOnline, Friends: online})
	return cl
}

// route forwards one addressed envelope. The relay stamps the authenticated
// sender and never inspects audio payloads.
func (s *Server) route(cl *client, env protocol.Envelope, send func(protocol.Envelope) error) {
	s.dir.Touch(cl.id)

	switch env.Type {
	case protocol.TypeVoiceMessage:
		env.SenderID = cl.id
		if s.dir.Deliver(env.RecipientID, env) {
			_ = send(protocol.Envelope{
				Type:        protocol.TypeMessageDelivered,
				RecipientID: env.RecipientID,
				MessageID:   env.MessageID,
			})
			return
		}
		// dropped; the advisory is informational, the sender keeps its copy
		zap.L().Info("voice message dropped",
			zap.String("sender", cl.id),
			zap.String("recipient", env.RecipientID),
			zap.String("message", env.MessageID))
		_ = send(protocol.Envelope{
			Type:        protocol.TypeRecipientOffline,
			RecipientID: env.RecipientID,
			MessageID:   env.MessageID,
			Detail:      "recipient offline, message dropped",
		})

	case protocol.TypeMessageHeard:
		// flows back to the original sender of the message
		env.ListenerID = cl.id
		s.dir.Deliver(env.SenderID, env)

	case protocol.TypeRecordingStarted, protocol.TypeRecordingStopped:
		env.SenderID = cl.id
		s.dir.Deliver(env.RecipientID, env)
	}
}

func (s *Server) now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
