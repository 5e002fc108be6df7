package session

import (
	"testing"
	"time"

	"voxlink/pkg/history"
)

// ---------- fakes ----------

type fakeTimer struct {
	stopped bool
	d       time.Duration
	fn      func()
}

func (t *fakeTimer) Stop() bool {
	was := t.stopped
	t.stopped = true
	return !was
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(10000, 0)} }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) lastArmed() *fakeTimer {
	for i := len(c.timers) - 1; i >= 0; i-- {
		if !c.timers[i].stopped {
			return c.timers[i]
		}
	}
	return nil
}

type fakeAudio struct {
	captures  int
	finishes  int
	aborts    int
	played    []string
	stops     int
	storeFail error
}

func (a *fakeAudio) StartCapture() error { a.captures++; return nil }
func (a *fakeAudio) FinishCapture()      { a.finishes++ }
func (a *fakeAudio) AbortCapture()       { a.aborts++ }
func (a *fakeAudio) StoreClip(id string, _ []byte) (string, error) {
	if a.storeFail != nil {
		return "", a.storeFail
	}
	return "clip:" + id, nil
}
func (a *fakeAudio) StartPlayback(ref string) error { a.played = append(a.played, ref); return nil }
func (a *fakeAudio) StopPlayback()                  { a.stops++ }

type fakeLights struct {
	status   map[int]Status
	selected map[int]bool
	flashes  int
}

func newFakeLights() *fakeLights {
	return &fakeLights{status: make(map[int]Status), selected: make(map[int]bool)}
}

func (l *fakeLights) SetStatus(i int, s Status)  { l.status[i] = s }
func (l *fakeLights) SetSelected(i int, on bool) { l.selected[i] = on }
func (l *fakeLights) FlashError()                { l.flashes++ }

type sentVoice struct {
	recipient string
	messageID string
	payload   []byte
}

type fakeSender struct {
	voices    []sentVoice
	heard     []string // "sender/message"
	recStarts []string
	recStops  []string
}

func (s *fakeSender) SendVoice(recipient, id string, payload []byte, _ time.Time) error {
	s.voices = append(s.voices, sentVoice{recipient, id, payload})
	return nil
}
func (s *fakeSender) SendHeard(sender, id string) error {
	s.heard = append(s.heard, sender+"/"+id)
	return nil
}
func (s *fakeSender) SendRecording(recipient string, started bool) error {
	if started {
		s.recStarts = append(s.recStarts, recipient)
	} else {
		s.recStops = append(s.recStops, recipient)
	}
	return nil
}

type rig struct {
	s      *Session
	clock  *fakeClock
	audio  *fakeAudio
	lights *fakeLights
	sender *fakeSender
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		clock:  newFakeClock(),
		audio:  &fakeAudio{},
		lights: newFakeLights(),
		sender: &fakeSender{},
	}
	r.s = New(Config{
		DeviceID: "dev-me",
		Friends: []Friend{
			{Alias: "anna", Name: "Anna", DeviceID: "dev-anna", LightIndex: 0},
			{Alias: "ben", Name: "Ben", DeviceID: "dev-ben", LightIndex: 1},
		},
		ConversationWindow: 300 * time.Second,
		Audio:              r.audio,
		Lights:             r.lights,
		Sender:             r.sender,
		Clock:              r.clock,
	})
	return r
}

func (r *rig) setOnline(alias string, on bool) {
	device := map[string]string{"anna": "dev-anna", "ben": "dev-ben"}[alias]
	r.s.handle(FriendPresence{Device: device, Online: on})
}

// ---------- tests ----------

func TestRecordAndSendFlow(t *testing.T) {
	r := newRig(t)
	r.setOnline("anna", true)

	r.s.handle(RecordPressed{})
	if r.s.mode != Recording || r.audio.captures != 1 {
		t.Fatalf("expected capture toward anna, mode=%v captures=%d", r.s.mode, r.audio.captures)
	}
	if len(r.sender.recStarts) != 1 || r.sender.recStarts[0] != "dev-anna" {
		t.Fatalf("recording_started not announced: %v", r.sender.recStarts)
	}
	if r.lights.status[0] != StatusPulsingRed {
		t.Fatalf("indicator during capture = %v, want pulsing_red", r.lights.status[0])
	}

	r.s.handle(RecordPressed{})
	if r.s.mode != Idle || r.audio.finishes != 1 {
		t.Fatalf("second press must stop capture, mode=%v finishes=%d", r.s.mode, r.audio.finishes)
	}
	if len(r.sender.recStops) != 1 {
		t.Fatalf("recording_stopped not announced")
	}

	r.s.handle(RecordingFinished{Ref: "clip:x", Data: []byte{1, 2, 3}})
	if len(r.sender.voices) != 1 || r.sender.voices[0].recipient != "dev-anna" {
		t.Fatalf("voice not sent: %v", r.sender.voices)
	}
	if n := r.s.hist.Len("anna"); n != 1 {
		t.Fatalf("history entries = %d, want 1", n)
	}
	m, _ := r.s.hist.At("anna", 0)
	if m.Direction != history.DirectionSent || m.ID != r.sender.voices[0].messageID {
		t.Fatalf("sent entry mismatch: %+v", m)
	}
	if r.lights.status[0] != StatusSolidBlue {
		t.Fatalf("after send indicator = %v, want solid_blue", r.lights.status[0])
	}
}

func TestRecordOfflineFlashesError(t *testing.T) {
	r := newRig(t)

	r.s.handle(RecordPressed{})
	if r.s.mode != Idle || r.audio.captures != 0 {
		t.Fatalf("capture must not start toward offline friend")
	}
	if r.lights.flashes != 1 {
		t.Fatalf("expected one error flash, got %d", r.lights.flashes)
	}
}

func TestFriendButtonSelectAndPlayback(t *testing.T) {
	r := newRig(t)
	r.setOnline("ben", true)

	// first press on an unselected friend only selects
	r.s.handle(FriendPressed{Friend: "ben"})
	if r.s.selected != "ben" || r.s.mode != Idle {
		t.Fatalf("expected selection only, selected=%q mode=%v", r.s.selected, r.s.mode)
	}
	if !r.lights.selected[1] || r.lights.selected[0] {
		t.Fatalf("selected indicator not moved: %v", r.lights.selected)
	}

	// pressing the selected friend with no history is an identity transition
	r.s.handle(FriendPressed{Friend: "ben"})
	if r.s.mode != Idle || len(r.audio.played) != 0 {
		t.Fatalf("empty log must not start playback")
	}

	r.s.handle(MessageArrived{SenderDevice: "dev-ben", MessageID: "m1", Payload: []byte{9}})
	r.s.handle(MessageArrived{SenderDevice: "dev-ben", MessageID: "m2", Payload: []byte{9}})
	if r.lights.status[1] != StatusPulsingGreen {
		t.Fatalf("unheard indicator = %v, want pulsing_green", r.lights.status[1])
	}

	// press plays the newest message and reports it heard
	r.s.handle(FriendPressed{Friend: "ben"})
	if r.s.mode != Playing || len(r.audio.played) != 1 || r.audio.played[0] != "clip:m2" {
		t.Fatalf("playback = %v mode=%v, want clip:m2", r.audio.played, r.s.mode)
	}
	if len(r.sender.heard) != 1 || r.sender.heard[0] != "dev-ben/m2" {
		t.Fatalf("heard notify = %v", r.sender.heard)
	}

	// same button again advances one step older
	r.s.handle(FriendPressed{Friend: "ben"})
	if len(r.audio.played) != 2 || r.audio.played[1] != "clip:m1" {
		t.Fatalf("advance = %v, want clip:m1", r.audio.played)
	}

	// a different friend stops playback and moves selection
	r.s.handle(FriendPressed{Friend: "anna"})
	if r.s.mode != Idle || r.s.selected != "anna" {
		t.Fatalf("expected stop+select, mode=%v selected=%q", r.s.mode, r.s.selected)
	}
}

func TestStatusPriorityRecordingWins(t *testing.T) {
	r := newRig(t)
	r.setOnline("anna", true)
	r.s.handle(FriendRecording{Device: "dev-anna", Active: true})
	if r.lights.status[0] != StatusRainbowCycle {
		t.Fatalf("friend recording indicator = %v", r.lights.status[0])
	}

	r.s.handle(RecordPressed{})
	if r.lights.status[0] != StatusPulsingRed {
		t.Fatalf("own capture must outrank friend recording, got %v", r.lights.status[0])
	}
}

func TestConversationDeadline(t *testing.T) {
	r := newRig(t)
	r.setOnline("anna", true)

	r.s.handle(DialogPressed{})
	if !r.s.conversation {
		t.Fatalf("conversation mode not enabled")
	}
	timer := r.clock.lastArmed()
	if timer == nil || timer.d != 300*time.Second {
		t.Fatalf("deadline not armed for window: %+v", timer)
	}

	// activity shortly before expiry pushes the deadline out
	r.clock.now = r.clock.now.Add(299 * time.Second)
	r.s.handle(MessageArrived{SenderDevice: "dev-anna", MessageID: "m1", Payload: []byte{1}})
	r.s.handle(PlaybackFinished{}) // autoplay ran; return to Idle

	// the original deadline firing now is stale
	r.s.handle(DialogTimeout{})
	if !r.s.conversation {
		t.Fatalf("stale timeout must not end the conversation")
	}
	rearmed := r.clock.lastArmed()
	if rearmed == nil || rearmed.d != 300*time.Second {
		t.Fatalf("deadline not re-armed from last activity: %+v", rearmed)
	}

	// full idle window with no traffic ends the conversation
	r.clock.now = r.clock.now.Add(300 * time.Second)
	r.s.handle(DialogTimeout{})
	if r.s.conversation {
		t.Fatalf("conversation must auto-disable after the idle window")
	}
}

func TestConversationAutoplayOnArrival(t *testing.T) {
	r := newRig(t)
	r.setOnline("ben", true)
	r.s.handle(DialogPressed{})

	r.s.handle(MessageArrived{SenderDevice: "dev-ben", MessageID: "m1", Payload: []byte{1}})
	if r.s.mode != Playing || r.s.selected != "ben" {
		t.Fatalf("arrival must autoplay, mode=%v selected=%q", r.s.mode, r.s.selected)
	}
	if len(r.audio.played) != 1 || r.audio.played[0] != "clip:m1" {
		t.Fatalf("autoplay = %v", r.audio.played)
	}

	r.s.handle(PlaybackFinished{})
	if r.s.mode != Idle {
		t.Fatalf("expected Idle after playback, got %v", r.s.mode)
	}
}

func TestArrivalDuringRecordingQueuesAutoplay(t *testing.T) {
	r := newRig(t)
	r.setOnline("anna", true)
	r.s.handle(DialogPressed{})
	r.s.handle(RecordPressed{}) // capture toward anna

	r.s.handle(MessageArrived{SenderDevice: "dev-ben", MessageID: "m1", Payload: []byte{1}})
	if r.s.mode != Recording || len(r.audio.played) != 0 {
		t.Fatalf("arrival mid-capture must queue, not play")
	}

	r.s.handle(RecordPressed{})
	r.s.handle(RecordingFinished{Ref: "clip:out", Data: []byte{7}})
	if len(r.sender.voices) != 1 {
		t.Fatalf("queued autoplay must not swallow the send")
	}
	if r.s.mode != Playing || r.s.selected != "ben" || r.audio.played[0] != "clip:m1" {
		t.Fatalf("queued message not played: mode=%v selected=%q played=%v",
			r.s.mode, r.s.selected, r.audio.played)
	}
}

func TestCancelledCaptureDropsLateClip(t *testing.T) {
	r := newRig(t)
	r.setOnline("anna", true)
	r.s.handle(RecordPressed{})

	// any other button cancels the capture
	r.s.handle(FriendPressed{Friend: "ben"})
	if r.s.mode != Idle || r.audio.aborts != 1 {
		t.Fatalf("cancel missing, mode=%v aborts=%d", r.s.mode, r.audio.aborts)
	}

	// a clip surfacing after the cancel is discarded
	r.s.handle(RecordingFinished{Ref: "clip:late", Data: []byte{1}})
	if len(r.sender.voices) != 0 || r.s.hist.Len("anna") != 0 {
		t.Fatalf("late clip must be dropped")
	}
}

func TestPlaybackFinishedWhenIdleIsNoop(t *testing.T) {
	r := newRig(t)
	r.s.handle(PlaybackFinished{})
	if r.s.mode != Idle {
		t.Fatalf("stale completion changed mode to %v", r.s.mode)
	}
}

func TestLinkDownIdlesSession(t *testing.T) {
	r := newRig(t)
	r.setOnline("anna", true)
	r.setOnline("ben", true)
	r.s.handle(RecordPressed{})

	r.s.handle(LinkDown{})
	if r.s.mode != Idle || r.audio.aborts != 1 {
		t.Fatalf("link loss must abort capture, mode=%v aborts=%d", r.s.mode, r.audio.aborts)
	}
	if r.s.online["anna"] || r.s.online["ben"] {
		t.Fatalf("peers must read offline after link loss")
	}
	if r.lights.status[0] != StatusOff || r.lights.status[1] != StatusOff {
		t.Fatalf("indicators = %v, want off", r.lights.status)
	}
}

func TestOfflinePeerClearsRecordingIndicator(t *testing.T) {
	r := newRig(t)
	r.setOnline("anna", true)
	r.s.handle(FriendRecording{Device: "dev-anna", Active: true})
	r.setOnline("anna", false)
	if r.lights.status[0] != StatusOff {
		t.Fatalf("indicator = %v, want off", r.lights.status[0])
	}
}
