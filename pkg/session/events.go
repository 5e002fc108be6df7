package session

import "time"

// Event is one input to the session loop. All sources (buttons, the relay
// link, audio completion notifiers, timers) post events; nothing touches
// session state directly.
type Event interface{ isEvent() }

// Button inputs. Friends are addressed by alias.
type (
	// FriendPressed is the per-friend button.
	FriendPressed struct{ Friend string }
	// RecordPressed is the shared record button.
	RecordPressed struct{}
	// DialogPressed toggles conversation mode.
	DialogPressed struct{}
)

// Network inputs, addressed by remote device identifier.
type (
	// MessageArrived carries a forwarded voice message.
	MessageArrived struct {
		SenderDevice string
		MessageID    string
		Payload      []byte
		Timestamp    time.Time
	}
	// MessageHeard reports that a peer listened to our message.
	MessageHeard struct {
		ListenerDevice string
		MessageID      string
	}
	// FriendPresence reports a peer going on- or offline.
	FriendPresence struct {
		Device string
		Online bool
	}
	// FriendRecording reports a peer starting/stopping a recording toward us.
	FriendRecording struct {
		Device string
		Active bool
	}
	// RecipientOffline is the relay's advisory that a voice message was
	// dropped; informational only.
	RecipientOffline struct {
		Recipient string
		MessageID string
	}
)

// Completion notifiers and timers.
type (
	// RecordingFinished reports the captured clip after a stop request.
	RecordingFinished struct {
		Ref  string
		Data []byte
		Err  error
	}
	// PlaybackFinished reports the current clip reaching its end.
	PlaybackFinished struct{}
	// DialogTimeout is the conversation deadline firing. The handler
	// re-checks elapsed idle time; a stale timeout is a no-op.
	DialogTimeout struct{}
	// LinkDown reports the relay link failing; the session falls back to
	// Idle and marks everyone offline until re-registration.
	LinkDown struct{}
)

func (FriendPressed) isEvent()     {}
func (RecordPressed) isEvent()     {}
func (DialogPressed) isEvent()     {}
func (MessageArrived) isEvent()    {}
func (MessageHeard) isEvent()      {}
func (FriendPresence) isEvent()    {}
func (FriendRecording) isEvent()   {}
func (RecipientOffline) isEvent()  {}
func (RecordingFinished) isEvent() {}
func (PlaybackFinished) isEvent()  {}
func (DialogTimeout) isEvent()     {}
func (LinkDown) isEvent()          {}
