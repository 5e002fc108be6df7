package device

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxlink/pkg/session"
)

// MockAudio is the headless AudioDriver: capture produces a small synthetic
// clip after a fixed delay, playback "plays" for a fixed duration. Clips live
// in memory keyed by ref. Completion events are posted like real hardware
// would post them, so the session sees the same asynchrony either way.
type MockAudio struct {
	post        func(session.Event)
	captureLen  time.Duration
	playbackLen time.Duration

	mu        sync.Mutex
	clips     map[string][]byte
	capturing bool
	playTimer *time.Timer
	seq       int
}

func NewMockAudio(post func(session.Event)) *MockAudio {
	return &MockAudio{
		post:        post,
		captureLen:  100 * time.Millisecond,
		playbackLen: 500 * time.Millisecond,
		clips:       make(map[string][]byte),
	}
}

func (m *MockAudio) StartCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capturing {
		return fmt.Errorf("capture already running")
	}
	m.capturing = true
	zap.L().Info("mock capture started")
	return nil
}

func (m *MockAudio) FinishCapture() {
	m.mu.Lock()
	if !m.capturing {
		m.mu.Unlock()
		return
	}
	m.capturing = false
	m.seq++
	ref := fmt.Sprintf("mock:%d", m.seq)
	data := []byte(fmt.Sprintf("mock clip %d", m.seq))
	m.clips[ref] = data
	m.mu.Unlock()

	time.AfterFunc(m.captureLen, func() {
		m.post(session.RecordingFinished{Ref: ref, Data: data})
	})
}

func (m *MockAudio) AbortCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capturing = false
}

func (m *MockAudio) StoreClip(messageID string, data []byte) (string, error) {
	ref := "mock:recv:" + messageID
	m.mu.Lock()
	m.clips[ref] = data
	m.mu.Unlock()
	return ref, nil
}

func (m *MockAudio) StartPlayback(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clips[ref]; !ok {
		return fmt.Errorf("no clip %q", ref)
	}
	if m.playTimer != nil {
		m.playTimer.Stop()
	}
	zap.L().Info("mock playback", zap.String("ref", ref))
	m.playTimer = time.AfterFunc(m.playbackLen, func() {
		m.post(session.PlaybackFinished{})
	})
	return nil
}

func (m *MockAudio) StopPlayback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playTimer != nil {
		m.playTimer.Stop()
		m.playTimer = nil
	}
}

// LogLights prints indicator changes instead of driving LEDs.
type LogLights struct{}

func (LogLights) SetStatus(i int, s session.Status) {
	zap.L().Info("light", zap.Int("index", i), zap.String("status", string(s)))
}

func (LogLights) SetSelected(i int, on bool) {
	zap.L().Info("light selected", zap.Int("index", i), zap.Bool("on", on))
}

func (LogLights) FlashError() {
	zap.L().Info("light error flash")
}
