// Package protocol defines the wire contract between devices and the relay.
//
// Every frame carries exactly one Envelope. The canonical encoding is JSON;
// CBOR is available for constrained links. Audio payloads are opaque bytes and
// pass through the relay untouched.
package protocol

import (
	"errors"
	"fmt"
)

// Type identifies a wire message kind.
type Type string

// Device -> relay.
const (
	TypeRegister         Type = "register"
	TypeVoiceMessage     Type = "voice_message"
	TypeMessageHeard     Type = "message_heard"
	TypeRecordingStarted Type = "recording_started"
	TypeRecordingStopped Type = "recording_stopped"
	TypePing             Type = "ping"
)

// Relay -> device.
const (
	TypeRegistered       Type = "registered"
	TypeFriendsOnline    Type = "friends_online"
	TypeFriendOnline     Type = "friend_online"
	TypeFriendOffline    Type = "friend_offline"
	TypeMessageDelivered Type = "message_delivered"
	TypeRecipientOffline Type = "recipient_offline"
	TypePong             Type = "pong"
	TypeError            Type = "error"
)

// Envelope is the single message shape used on the wire. Fields not relevant
// to a given Type are omitted from the encoding.
type Envelope struct {
	Type Type `json:"type" cbor:"type"`

	// register / registered
	DeviceID   string   `json:"device_id,omitempty" cbor:"device_id,omitempty"`
	DeviceName string   `json:"device_name,omitempty" cbor:"device_name,omitempty"`
	Friends    []string `json:"friends,omitempty" cbor:"friends,omitempty"`

	// addressed routing
	SenderID    string `json:"sender_id,omitempty" cbor:"sender_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty" cbor:"recipient_id,omitempty"`
	ListenerID  string `json:"listener_id,omitempty" cbor:"listener_id,omitempty"`

	// presence events
	FriendID string `json:"friend_id,omitempty" cbor:"friend_id,omitempty"`

	// voice_message / message_heard
	MessageID string `json:"message_id,omitempty" cbor:"message_id,omitempty"`
	AudioData []byte `json:"audio_data,omitempty" cbor:"audio_data,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty" cbor:"timestamp,omitempty"`

	// informational
	ServerTime string `json:"server_time,omitempty" cbor:"server_time,omitempty"`
	Detail     string `json:"detail,omitempty" cbor:"detail,omitempty"`
}

var errUnknownType = errors.New("unknown envelope type")

// Validate checks that the fields required for the envelope's type are set.
// Unknown types are rejected so the relay can count them as protocol errors.
func (e *Envelope) Validate() error {
	switch e.Type {
	case TypeRegister:
		if e.DeviceID == "" {
			return errors.New("register: device_id required")
		}
	case TypeVoiceMessage:
		if e.RecipientID == "" || e.MessageID == "" || len(e.AudioData) == 0 {
			return errors.New("voice_message: recipient_id, message_id and audio_data required")
		}
	case TypeMessageHeard:
		if e.SenderID == "" || e.MessageID == "" {
			return errors.New("message_heard: sender_id and message_id required")
		}
	case TypeRecordingStarted, TypeRecordingStopped:
		if e.RecipientID == "" {
			return fmt.Errorf("%s: recipient_id required", e.Type)
		}
	case TypePing, TypePong:
		// no payload
	case TypeRegistered, TypeFriendsOnline, TypeFriendOnline, TypeFriendOffline,
		TypeMessageDelivered, TypeRecipientOffline, TypeError:
		// relay-originated; devices accept them as-is
	default:
		return fmt.Errorf("%w: %q", errUnknownType, e.Type)
	}
	return nil
}

// Ping and Pong are the shared keep-alive envelopes.
var (
	Ping = Envelope{Type: TypePing}
	Pong = Envelope{Type: TypePong}
)
