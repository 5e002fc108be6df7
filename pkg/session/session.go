// Package session owns one device's interaction state: the Idle/Recording/
// Playing machine, friend selection, conversation mode and the playback
// cursor. All inputs arrive as events on one queue consumed by one goroutine,
// so no transition ever observes another in progress.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxlink/pkg/history"
)

// Mode is the session's current activity.
type Mode int

const (
	Idle Mode = iota
	Recording
	Playing
)

func (m Mode) String() string {
	switch m {
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	default:
		return "idle"
	}
}

// Friend is one entry of the local alias table, immutable at runtime.
type Friend struct {
	Alias      string
	Name       string
	DeviceID   string
	LightIndex int
}

// Config wires a session's collaborators.
type Config struct {
	DeviceID           string
	Friends            []Friend
	ConversationWindow time.Duration
	Audio              AudioDriver
	Lights             Lights
	Sender             Sender
	Clock              Clock // nil = wall clock
	QueueSize          int
}

// Session is the single owner of the device's interaction state. Mutations
// happen only inside handle(), called from the Run goroutine.
type Session struct {
	deviceID string
	friends  []Friend
	byAlias  map[string]Friend
	byDevice map[string]string // device id -> alias
	window   time.Duration

	events chan Event
	hist   *history.Store
	audio  AudioDriver
	lights Lights
	sender Sender
	clock  Clock

	mode         Mode
	selected     string // alias, "" = none
	nav          *history.Navigator
	conversation bool
	lastActivity time.Time
	deadline     Timer

	pendingSend     string // alias the in-flight capture is addressed to
	pendingAutoplay string // alias queued for autoplay after recording

	online          map[string]bool
	friendRecording map[string]bool
	sentUnheard     map[string]bool
}

func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Lights == nil {
		cfg.Lights = NopLights{}
	}
	if cfg.Sender == nil {
		cfg.Sender = NopSender{}
	}
	if cfg.ConversationWindow <= 0 {
		cfg.ConversationWindow = 300 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	s := &Session{
		deviceID:        cfg.DeviceID,
		friends:         cfg.Friends,
		byAlias:         make(map[string]Friend, len(cfg.Friends)),
		byDevice:        make(map[string]string, len(cfg.Friends)),
		window:          cfg.ConversationWindow,
		events:          make(chan Event, cfg.QueueSize),
		hist:            history.NewStore(),
		audio:           cfg.Audio,
		lights:          cfg.Lights,
		sender:          cfg.Sender,
		clock:           cfg.Clock,
		online:          make(map[string]bool, len(cfg.Friends)),
		friendRecording: make(map[string]bool, len(cfg.Friends)),
		sentUnheard:     make(map[string]bool, len(cfg.Friends)),
	}
	for _, f := range cfg.Friends {
		s.byAlias[f.Alias] = f
		s.byDevice[f.DeviceID] = f.Alias
	}
	// auto-select the first configured friend
	if len(cfg.Friends) > 0 {
		s.selected = cfg.Friends[0].Alias
	}
	return s
}

// History exposes the conversation log (read-mostly; the store is guarded).
func (s *Session) History() *history.Store { return s.hist }

// Post queues one event for the session loop. Safe from any goroutine.
func (s *Session) Post(ev Event) {
	s.events <- ev
}

// Run consumes events until ctx is cancelled. It must be the only caller of
// handle().
func (s *Session) Run(ctx context.Context) error {
	s.refreshAll()
	for {
		select {
		case <-ctx.Done():
			s.stopDeadline()
			s.abortActivity()
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// handle executes exactly one transition. Events with no matching transition
// are identity transitions, never errors.
func (s *Session) handle(ev Event) {
	switch e := ev.(type) {
	case FriendPressed:
		s.onFriendPressed(e.Friend)
	case RecordPressed:
		s.onRecordPressed()
	case DialogPressed:
		s.onDialogPressed()
	case MessageArrived:
		s.onMessageArrived(e)
	case MessageHeard:
		s.onMessageHeard(e)
	case FriendPresence:
		s.onFriendPresence(e)
	case FriendRecording:
		s.onFriendRecording(e)
	case RecipientOffline:
		zap.L().Info("message dropped, recipient offline",
			zap.String("recipient", e.Recipient), zap.String("message", e.MessageID))
	case RecordingFinished:
		s.onRecordingFinished(e)
	case PlaybackFinished:
		s.onPlaybackFinished()
	case DialogTimeout:
		s.onDialogTimeout()
	case LinkDown:
		s.onLinkDown()
	default:
		zap.L().Debug("unhandled event", zap.Any("event", ev))
	}
}

// ---------- button handlers ----------

func (s *Session) onFriendPressed(alias string) {
	if _, ok := s.byAlias[alias]; !ok {
		zap.L().Warn("unknown friend button", zap.String("friend", alias))
		return
	}
	switch s.mode {
	case Recording:
		s.cancelRecording()
	case Playing:
		if alias == s.selected && s.nav != nil {
			s.audio.StopPlayback()
			if m, ok := s.nav.Advance(); ok {
				s.playCurrent(m)
			} else {
				s.stopPlayback()
			}
			return
		}
		s.stopPlayback()
		s.selectFriend(alias)
	case Idle:
		if alias != s.selected {
			s.selectFriend(alias)
			return
		}
		s.startPlayback(alias)
	}
}

func (s *Session) onRecordPressed() {
	switch s.mode {
	case Recording:
		s.finishRecording()
	case Playing:
		s.stopPlayback()
	case Idle:
		if s.selected == "" || !s.online[s.selected] {
			zap.L().Info("cannot record, friend offline or none selected",
				zap.String("friend", s.selected))
			s.lights.FlashError()
			s.refreshAll()
			return
		}
		s.startRecording()
	}
}

func (s *Session) onDialogPressed() {
	switch s.mode {
	case Recording:
		s.cancelRecording()
		return
	case Playing:
		s.stopPlayback()
		return
	}
	s.conversation = !s.conversation
	zap.L().Info("conversation mode", zap.Bool("on", s.conversation))
	if s.conversation {
		s.lastActivity = s.clock.Now()
		s.armDeadline(s.window)
	} else {
		s.stopDeadline()
	}
}

// ---------- recording ----------

func (s *Session) startRecording() {
	if err := s.audio.StartCapture(); err != nil {
		zap.L().Error("start capture failed", zap.Error(err))
		s.lights.FlashError()
		s.refreshAll()
		return
	}
	s.setMode(Recording)
	if err := s.sender.SendRecording(s.byAlias[s.selected].DeviceID, true); err != nil {
		zap.L().Warn("recording_started notify failed", zap.Error(err))
	}
}

// finishRecording stops capture and hands the clip off for sending; the
// message itself is created when RecordingFinished arrives.
func (s *Session) finishRecording() {
	friend := s.selected
	if err := s.sender.SendRecording(s.byAlias[friend].DeviceID, false); err != nil {
		zap.L().Warn("recording_stopped notify failed", zap.Error(err))
	}
	s.pendingSend = friend
	s.audio.FinishCapture()
	s.setMode(Idle)
}

func (s *Session) cancelRecording() {
	if s.mode != Recording {
		return
	}
	if s.selected != "" {
		if err := s.sender.SendRecording(s.byAlias[s.selected].DeviceID, false); err != nil {
			zap.L().Warn("recording_stopped notify failed", zap.Error(err))
		}
	}
	s.audio.AbortCapture()
	s.pendingSend = ""
	s.pendingAutoplay = ""
	zap.L().Info("recording cancelled")
	s.setMode(Idle)
}

func (s *Session) onRecordingFinished(e RecordingFinished) {
	friend := s.pendingSend
	s.pendingSend = ""
	if friend == "" {
		// capture was cancelled before finalization; drop silently
		return
	}
	if e.Err != nil || len(e.Data) == 0 {
		zap.L().Warn("capture yielded no clip", zap.Error(e.Err))
		return
	}
	now := s.clock.Now()
	id := uuid.NewString()
	s.hist.Append(friend, history.Message{
		ID:         id,
		Direction:  history.DirectionSent,
		PayloadRef: e.Ref,
		Timestamp:  now,
		Heard:      true, // we heard our own clip
	})
	s.sentUnheard[friend] = true
	if err := s.sender.SendVoice(s.byAlias[friend].DeviceID, id, e.Data, now); err != nil {
		zap.L().Warn("voice send failed", zap.Error(err))
	}
	zap.L().Info("message sent", zap.String("friend", friend), zap.String("message", id))
	s.refreshFriend(friend)

	// conversation mode: a message that arrived mid-recording plays now
	if s.pendingAutoplay != "" && s.mode == Idle && s.conversation {
		alias := s.pendingAutoplay
		s.pendingAutoplay = ""
		s.autoplay(alias)
	}
}

// ---------- playback ----------

func (s *Session) startPlayback(alias string) {
	nav, m, ok := s.hist.StartNavigator(alias)
	if !ok {
		zap.L().Info("no messages for friend", zap.String("friend", alias))
		return
	}
	s.nav = nav
	s.setMode(Playing)
	s.playCurrent(m)
}

func (s *Session) autoplay(alias string) {
	if s.selected != alias {
		s.selectFriend(alias)
	}
	s.startPlayback(alias)
}

func (s *Session) playCurrent(m history.Message) {
	if m.Direction == history.DirectionReceived && !m.Heard {
		if _, flipped := s.hist.MarkHeard(s.nav.Friend(), m.ID); flipped {
			f := s.byAlias[s.nav.Friend()]
			if err := s.sender.SendHeard(f.DeviceID, m.ID); err != nil {
				zap.L().Warn("message_heard notify failed", zap.Error(err))
			}
			s.refreshFriend(s.nav.Friend())
		}
	}
	if err := s.audio.StartPlayback(m.PayloadRef); err != nil {
		zap.L().Warn("playback failed", zap.String("ref", m.PayloadRef), zap.Error(err))
		s.stopPlayback()
	}
}

func (s *Session) onPlaybackFinished() {
	if s.mode != Playing {
		// stale completion after a cancel; identity transition
		return
	}
	if s.pendingAutoplay != "" && s.conversation {
		alias := s.pendingAutoplay
		s.pendingAutoplay = ""
		s.nav = nil
		s.setMode(Idle)
		s.autoplay(alias)
		return
	}
	s.stopPlayback()
}

// stopPlayback is idempotent: stopping an idle session is a no-op.
func (s *Session) stopPlayback() {
	s.audio.StopPlayback()
	s.nav = nil
	if s.mode == Playing {
		s.setMode(Idle)
	}
}

// ---------- network handlers ----------

func (s *Session) onMessageArrived(e MessageArrived) {
	alias, ok := s.byDevice[e.SenderDevice]
	if !ok {
		zap.L().Warn("message from unknown device", zap.String("device", e.SenderDevice))
		return
	}
	ref, err := s.audio.StoreClip(e.MessageID, e.Payload)
	if err != nil {
		zap.L().Error("store clip failed", zap.Error(err))
		return
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	s.hist.Append(alias, history.Message{
		ID:         e.MessageID,
		Direction:  history.DirectionReceived,
		PayloadRef: ref,
		Timestamp:  ts,
	})
	zap.L().Info("message received", zap.String("friend", alias), zap.String("message", e.MessageID))

	if s.conversation {
		s.lastActivity = s.clock.Now()
		s.armDeadline(s.window)
		switch s.mode {
		case Recording:
			// play once the recording is out the door
			s.pendingAutoplay = alias
		case Idle:
			s.refreshFriend(alias)
			s.autoplay(alias)
			return
		case Playing:
			// cursor stays where the user put it; history only
		}
	}
	s.refreshFriend(alias)
}

func (s *Session) onMessageHeard(e MessageHeard) {
	alias, ok := s.byDevice[e.ListenerDevice]
	if !ok {
		return
	}
	s.sentUnheard[alias] = false
	zap.L().Info("friend heard message", zap.String("friend", alias), zap.String("message", e.MessageID))
	s.refreshFriend(alias)
}

func (s *Session) onFriendPresence(e FriendPresence) {
	alias, ok := s.byDevice[e.Device]
	if !ok {
		return
	}
	s.online[alias] = e.Online
	if !e.Online {
		s.friendRecording[alias] = false
	}
	zap.L().Info("presence", zap.String("friend", alias), zap.Bool("online", e.Online))
	s.refreshFriend(alias)
}

func (s *Session) onFriendRecording(e FriendRecording) {
	alias, ok := s.byDevice[e.Device]
	if !ok {
		return
	}
	s.friendRecording[alias] = e.Active
	s.refreshFriend(alias)
}

func (s *Session) onLinkDown() {
	s.abortActivity()
	for alias := range s.online {
		s.online[alias] = false
	}
	for alias := range s.friendRecording {
		s.friendRecording[alias] = false
	}
	zap.L().Warn("relay link down, session idled")
	s.refreshAll()
}

// abortActivity cancels any in-flight capture or playback. Idempotent.
func (s *Session) abortActivity() {
	switch s.mode {
	case Recording:
		s.audio.AbortCapture()
		s.pendingSend = ""
		s.pendingAutoplay = ""
		s.setMode(Idle)
	case Playing:
		s.stopPlayback()
	}
}

// ---------- conversation deadline ----------

func (s *Session) armDeadline(d time.Duration) {
	s.stopDeadline()
	s.deadline = s.clock.AfterFunc(d, func() { s.Post(DialogTimeout{}) })
}

func (s *Session) stopDeadline() {
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
}

// onDialogTimeout clears conversation mode only when the idle window really
// elapsed; a message racing the timer re-arms instead.
func (s *Session) onDialogTimeout() {
	if !s.conversation {
		return
	}
	idle := s.clock.Now().Sub(s.lastActivity)
	if idle < s.window {
		s.armDeadline(s.window - idle)
		return
	}
	s.conversation = false
	s.deadline = nil
	zap.L().Info("conversation mode auto-disabled")
}

// ---------- selection & indicators ----------

func (s *Session) selectFriend(alias string) {
	s.selected = alias
	zap.L().Info("friend selected", zap.String("friend", alias))
	s.refreshAll()
}

func (s *Session) setMode(m Mode) {
	if s.mode == m {
		return
	}
	zap.L().Debug("mode change", zap.Stringer("from", s.mode), zap.Stringer("to", m))
	s.mode = m
	s.refreshAll()
}

func (s *Session) facts(alias string) Facts {
	return Facts{
		RecordingToward: s.mode == Recording && s.selected == alias,
		FriendRecording: s.friendRecording[alias],
		UnheardReceived: s.hist.UnheardReceived(alias),
		SentUnheard:     s.sentUnheard[alias],
		Online:          s.online[alias],
	}
}

func (s *Session) refreshFriend(alias string) {
	f, ok := s.byAlias[alias]
	if !ok {
		return
	}
	s.lights.SetStatus(f.LightIndex, ResolveStatus(s.facts(alias)))
	s.lights.SetSelected(f.LightIndex, alias == s.selected)
}

func (s *Session) refreshAll() {
	for _, f := range s.friends {
		s.refreshFriend(f.Alias)
	}
}
