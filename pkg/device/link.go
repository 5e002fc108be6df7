// Package device connects a session to the relay: it keeps the link dialed,
// registers on every (re)connect, translates inbound envelopes into session
// events and implements session.Sender over the live connection.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxlink/pkg/protocol"
	"voxlink/pkg/protocol/codec"
	"voxlink/pkg/session"
	"voxlink/pkg/transport"
)

// ErrLinkDown is returned by Sender methods while the relay is unreachable.
var ErrLinkDown = errors.New("relay link down")

const keepaliveInterval = 30 * time.Second

// EventSink receives the session events the link produces. Satisfied by
// *session.Session.
type EventSink interface {
	Post(session.Event)
}

// SinkFunc adapts a function to EventSink, useful when the session is
// constructed after the link.
type SinkFunc func(session.Event)

func (f SinkFunc) Post(ev session.Event) { f(ev) }

// LinkConfig wires a Link.
type LinkConfig struct {
	DeviceID   string
	DeviceName string
	Friends    []string // remote device ids declared at registration
	RelayAddr  string
	Transport  transport.Transport
	Wire       codec.Codec
	Dial       transport.DialOptions
}

// Link owns the device side of the relay connection.
type Link struct {
	cfg  LinkConfig
	sink EventSink

	mu   sync.RWMutex
	conn transport.Conn
}

func NewLink(cfg LinkConfig, sink EventSink) *Link {
	return &Link{cfg: cfg, sink: sink}
}

// Run dials the relay and serves the link until ctx is cancelled, redialing
// with backoff after every failure.
func (l *Link) Run(ctx context.Context) {
	transport.DialLoop(ctx, l.cfg.Transport, l.cfg.RelayAddr, l.cfg.Dial, l.serve)
}

func (l *Link) serve(ctx context.Context, conn transport.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		l.sink.Post(session.LinkDown{})
	}()

	if err := l.send(protocol.Envelope{
		Type:       protocol.TypeRegister,
		DeviceID:   l.cfg.DeviceID,
		DeviceName: l.cfg.DeviceName,
		Friends:    l.cfg.Friends,
	}); err != nil {
		zap.L().Warn("register failed", zap.Error(err))
		return
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go l.keepalive(pingCtx)

	for {
		frame, err := conn.RecvFrame()
		if err != nil {
			if ctx.Err() == nil {
				zap.L().Warn("relay link lost", zap.Error(err))
			}
			return
		}
		var env protocol.Envelope
		if err := l.cfg.Wire.Unmarshal(frame, &env); err != nil {
			zap.L().Warn("undecodable frame from relay", zap.Error(err))
			continue
		}
		l.dispatch(env)
	}
}

// dispatch maps one relay envelope onto session events.
func (l *Link) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRegistered:
		zap.L().Info("registered with relay",
			zap.String("device", env.DeviceID), zap.String("server_time", env.ServerTime))

	case protocol.TypeFriendsOnline:
		for _, id := range env.Friends {
			l.sink.Post(session.FriendPresence{Device: id, Online: true})
		}

	case protocol.TypeFriendOnline:
		l.sink.Post(session.FriendPresence{Device: env.FriendID, Online: true})

	case protocol.TypeFriendOffline:
		l.sink.Post(session.FriendPresence{Device: env.FriendID, Online: false})

	case protocol.TypeVoiceMessage:
		var ts time.Time
		if env.Timestamp != 0 {
			ts = time.UnixMilli(env.Timestamp)
		}
		l.sink.Post(session.MessageArrived{
			SenderDevice: env.SenderID,
			MessageID:    env.MessageID,
			Payload:      env.AudioData,
			Timestamp:    ts,
		})

	case protocol.TypeMessageHeard:
		l.sink.Post(session.MessageHeard{ListenerDevice: env.ListenerID, MessageID: env.MessageID})

	case protocol.TypeRecordingStarted:
		l.sink.Post(session.FriendRecording{Device: env.SenderID, Active: true})

	case protocol.TypeRecordingStopped:
		l.sink.Post(session.FriendRecording{Device: env.SenderID, Active: false})

	case protocol.TypeRecipientOffline:
		l.sink.Post(session.RecipientOffline{Recipient: env.RecipientID, MessageID: env.MessageID})

	case protocol.TypeMessageDelivered:
		zap.L().Debug("message delivered",
			zap.String("recipient", env.RecipientID), zap.String("message", env.MessageID))

	case protocol.TypePong:
		// keep-alive answered; the framer tracks liveness

	case protocol.TypeError:
		zap.L().Warn("relay reported protocol error", zap.String("detail", env.Detail))

	default:
		zap.L().Debug("ignoring envelope", zap.String("type", string(env.Type)))
	}
}

func (l *Link) keepalive(ctx context.Context) {
	t := time.NewTicker(keepaliveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.send(protocol.Ping); err != nil {
				return
			}
		}
	}
}

func (l *Link) send(env protocol.Envelope) error {
	l.mu.RLock()
	conn := l.conn
	l.mu.RUnlock()
	if conn == nil {
		return ErrLinkDown
	}
	b, err := l.cfg.Wire.Marshal(env)
	if err != nil {
		return err
	}
	return conn.SendFrame(b)
}

// SendVoice implements session.Sender.
func (l *Link) SendVoice(recipientID, messageID string, payload []byte, ts time.Time) error {
	return l.send(protocol.Envelope{
		Type:        protocol.TypeVoiceMessage,
		RecipientID: recipientID,
		MessageID:   messageID,
		AudioData:   payload,
		Timestamp:   ts.UnixMilli(),
	})
}

// SendHeard implements session.Sender.
func (l *Link) SendHeard(originalSenderID, messageID string) error {
	return l.send(protocol.Envelope{
		Type:      protocol.TypeMessageHeard,
		SenderID:  originalSenderID,
		MessageID: messageID,
	})
}

// SendRecording implements session.Sender.
func (l *Link) SendRecording(recipientID string, started bool) error {
	typ := protocol.TypeRecordingStopped
	if started {
		typ = protocol.TypeRecordingStarted
	}
	return l.send(protocol.Envelope{Type: typ, RecipientID: recipientID})
}
