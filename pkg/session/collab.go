package session

import "time"

// Lights drives the per-friend visual indicators. Implementations must be
// cheap; the session calls them from its event loop.
type Lights interface {
	// SetStatus applies the resolved status to a friend's indicator.
	SetStatus(lightIndex int, s Status)
	// SetSelected drives the independent selected-friend indicator.
	SetSelected(lightIndex int, on bool)
	// FlashError shows a brief error flash (e.g. record toward an offline
	// friend); indicators are re-applied right after.
	FlashError()
}

// AudioDriver captures and plays clips. Capture/playback run on the driver's
// own goroutines; completion comes back to the session as posted events
// (RecordingFinished, PlaybackFinished), never as direct calls.
type AudioDriver interface {
	// StartCapture begins recording a clip.
	StartCapture() error
	// FinishCapture stops recording; the driver posts RecordingFinished
	// with the clip when finalization completes.
	FinishCapture()
	// AbortCapture stops recording and discards the clip. Idempotent.
	AbortCapture()
	// StoreClip persists an incoming payload and returns an opaque ref.
	StoreClip(messageID string, data []byte) (ref string, err error)
	// StartPlayback plays the referenced clip; the driver posts
	// PlaybackFinished when it ends.
	StartPlayback(ref string) error
	// StopPlayback cancels any current playback. Idempotent.
	StopPlayback()
}

// Sender pushes events toward the relay. Send failures are non-fatal; the
// link layer reports them separately as LinkDown.
type Sender interface {
	SendVoice(recipientID, messageID string, payload []byte, ts time.Time) error
	SendHeard(originalSenderID, messageID string) error
	SendRecording(recipientID string, started bool) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn on its own goroutine after d.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer mirrors time.Timer's Stop for cancellable deadlines.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NopLights discards all indicator updates (headless runs).
type NopLights struct{}

func (NopLights) SetStatus(int, Status) {}
func (NopLights) SetSelected(int, bool) {}
func (NopLights) FlashError()           {}

// NopSender drops outbound events (offline/mock runs).
type NopSender struct{}

func (NopSender) SendVoice(string, string, []byte, time.Time) error { return nil }
func (NopSender) SendHeard(string, string) error                    { return nil }
func (NopSender) SendRecording(string, bool) error                  { return nil }
