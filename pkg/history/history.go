// Package history keeps the per-friend conversation log: sent and received
// messages merged, newest first. It lives entirely in memory on the device;
// the relay never sees it.
package history

import (
	"sync"
	"time"
)

// Direction of a message relative to this device.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Message is one conversation entry. PayloadRef is an opaque handle to the
// stored clip; the log never interprets it.
type Message struct {
	ID         string
	Direction  Direction
	PayloadRef string
	Timestamp  time.Time
	Heard      bool
}

// Store holds one log per friend, created lazily on first append.
type Store struct {
	mu       sync.RWMutex
	byFriend map[string][]Message // newest first
}

func NewStore() *Store { return &Store{byFriend: make(map[string][]Message)} }

// Append inserts m into the friend's log keeping timestamp-descending order,
// so reads never re-sort. Ties go before existing entries (newest insert
// first), matching plain prepend for monotonic clocks.
func (s *Store) Append(friendID string, m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.byFriend[friendID]
	i := 0
	for i < len(log) && log[i].Timestamp.After(m.Timestamp) {
		i++
	}
	log = append(log, Message{})
	copy(log[i+1:], log[i:])
	log[i] = m
	s.byFriend[friendID] = log
}

// Len returns the number of entries for a friend.
func (s *Store) Len(friendID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byFriend[friendID])
}

// At returns the entry at index i (0 = most recent).
func (s *Store) At(friendID string, i int) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.byFriend[friendID]
	if i < 0 || i >= len(log) {
		return Message{}, false
	}
	return log[i], true
}

// indexOf returns the position of the message id, or -1. Caller holds a lock.
func (s *Store) indexOf(friendID, id string) int {
	for i, m := range s.byFriend[friendID] {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// MarkHeard sets the heard flag on one message. Returns the updated message
// and whether the flag actually flipped.
func (s *Store) MarkHeard(friendID, id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(friendID, id)
	if i < 0 {
		return Message{}, false
	}
	log := s.byFriend[friendID]
	if log[i].Heard {
		return log[i], false
	}
	log[i].Heard = true
	return log[i], true
}

// UnheardReceived counts received-and-unheard entries for a friend.
func (s *Store) UnheardReceived(friendID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.byFriend[friendID] {
		if m.Direction == DirectionReceived && !m.Heard {
			n++
		}
	}
	return n
}

// Navigator is a playback cursor over one friend's log. It pins its position
// to a message id rather than an index, so entries appended mid-navigation
// shift indices without moving the cursor.
type Navigator struct {
	s      *Store
	friend string
	curID  string
}

// StartNavigator opens a cursor at the most recent entry. ok is false for an
// empty log.
func (s *Store) StartNavigator(friendID string) (*Navigator, Message, bool) {
	m, ok := s.At(friendID, 0)
	if !ok {
		return nil, Message{}, false
	}
	return &Navigator{s: s, friend: friendID, curID: m.ID}, m, true
}

// Friend returns the friend this cursor navigates.
func (n *Navigator) Friend() string { return n.friend }

// Current returns the entry the cursor points at. If the entry vanished the
// cursor falls back to the most recent one.
func (n *Navigator) Current() (Message, bool) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	i := n.s.indexOf(n.friend, n.curID)
	if i < 0 {
		i = 0
	}
	log := n.s.byFriend[n.friend]
	if len(log) == 0 {
		return Message{}, false
	}
	return log[i], true
}

// Advance moves one entry older, wrapping past the oldest back to the most
// recent, and returns the new current entry.
func (n *Navigator) Advance() (Message, bool) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	log := n.s.byFriend[n.friend]
	if len(log) == 0 {
		return Message{}, false
	}
	i := n.s.indexOf(n.friend, n.curID)
	i++ // -1 (gone) advances to 0
	if i >= len(log) {
		i = 0
	}
	n.curID = log[i].ID
	return log[i], true
}
