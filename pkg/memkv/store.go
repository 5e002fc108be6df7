// Package memkv is a small in-memory key/value store with per-key TTL.
// It backs the relay's device registry; nothing is ever written to disk.
package memkv

import (
	"sync"
	"sync/atomic"
	"time"
)

// Options tunes store behavior.
type Options struct {
	// CopyOnGet returns a private copy from Get (safe default)
	CopyOnGet bool
	// JanitorInterval between sweeps of expired keys; 0 picks a default
	JanitorInterval time.Duration
}

func (o Options) withDefaults() Options {
	res := o
	if res.JanitorInterval <= 0 {
		res.JanitorInterval = 30 * time.Second
	}
	return res
}

// Store is a mutex-guarded map with lazy expiry plus a background janitor.
type Store struct {
	opts    Options
	mu      sync.RWMutex
	m       map[string]*entry
	closeCh chan struct{}
	wg      sync.WaitGroup

	nowFn func() time.Time

	mSets    atomic.Uint64
	mGets    atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mDels    atomic.Uint64
	mExpired atomic.Uint64
	mUpdates atomic.Uint64
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano; 0 = no expiry
}

func New(opts Options) *Store {
	s := &Store{
		opts:    opts.withDefaults(),
		m:       make(map[string]*entry, 64),
		closeCh: make(chan struct{}),
		nowFn:   time.Now,
	}
	s.wg.Add(1)
	go s.janitor()
	return s
}

// Close stops the janitor. The store remains usable for reads afterwards.
func (s *Store) Close() {
	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}
	s.wg.Wait()
}

func (s *Store) janitor() {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.JanitorInterval)
	defer t.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.nowFn().UnixNano()
	s.mu.Lock()
	for k, e := range s.m {
		if e.expireAt != 0 && e.expireAt <= now {
			delete(s.m, k)
			s.mExpired.Add(1)
		}
	}
	s.mu.Unlock()
}

// expired reports whether e is past its deadline at now. Caller holds the lock.
func (s *Store) expired(e *entry, now int64) bool {
	return e.expireAt != 0 && e.expireAt <= now
}

// Set stores val under key with an optional TTL. Returns true when the key was
// created rather than overwritten.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
	now := s.nowFn()
	e := &entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expireAt = now.Add(ttl).UnixNano()
	}
	s.mu.Lock()
	old, had := s.m[key]
	created := !had || s.expired(old, now.UnixNano())
	s.m[key] = e
	s.mu.Unlock()
	s.mSets.Add(1)
	return created
}

// Get returns the value for key, if present and not expired.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mGets.Add(1)
	now := s.nowFn().UnixNano()
	s.mu.RLock()
	e, ok := s.m[key]
	if ok && s.expired(e, now) {
		ok = false
	}
	var v []byte
	if ok {
		v = e.val
	}
	s.mu.RUnlock()
	if !ok {
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	if s.opts.CopyOnGet {
		return append([]byte(nil), v...), true
	}
	return v, true
}

// GetDel atomically returns and removes the value for key.
func (s *Store) GetDel(key string) ([]byte, bool) {
	now := s.nowFn().UnixNano()
	s.mu.Lock()
	e, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	if s.expired(e, now) {
		s.mExpired.Add(1)
		return nil, false
	}
	s.mDels.Add(1)
	return e.val, true
}

// Update applies fn to the current value (nil when absent) and stores the
// result, preserving the key's TTL. fn runs under the store lock and must not
// call back into the store.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
	now := s.nowFn().UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if ok && s.expired(e, now) {
		delete(s.m, key)
		s.mExpired.Add(1)
		e, ok = nil, false
	}
	var old []byte
	if ok {
		old = e.val
	}
	nv := fn(old)
	if nv == nil {
		return false
	}
	if ok {
		e.val = nv
	} else {
		s.m[key] = &entry{val: nv}
	}
	s.mUpdates.Add(1)
	return true
}

// Delete removes key. Returns true when it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	_, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	s.mu.Unlock()
	if ok {
		s.mDels.Add(1)
	}
	return ok
}

// Expire sets or replaces the TTL for an existing key.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok || s.expired(e, now.UnixNano()) {
		return false
	}
	if ttl <= 0 {
		e.expireAt = 0
	} else {
		e.expireAt = now.Add(ttl).UnixNano()
	}
	return true
}

// TTL returns the remaining lifetime of key. ok is false when the key is
// missing or expired; d is 0 for keys without a deadline.
func (s *Store) TTL(key string) (d time.Duration, ok bool) {
	now := s.nowFn().UnixNano()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, present := s.m[key]
	if !present || s.expired(e, now) {
		return 0, false
	}
	if e.expireAt == 0 {
		return 0, true
	}
	return time.Duration(e.expireAt - now), true
}

// Keys returns a snapshot of the live (non-expired) keys.
func (s *Store) Keys() []string {
	now := s.nowFn().UnixNano()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for k, e := range s.m {
		if s.expired(e, now) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Stats is a snapshot of store counters.
type Stats struct {
	Keys    int
	Sets    uint64
	Gets    uint64
	Hits    uint64
	Misses  uint64
	Dels    uint64
	Expired uint64
	Updates uint64
}

// Metrics returns a counters snapshot.
func (s *Store) Metrics() Stats {
	s.mu.RLock()
	keys := len(s.m)
	s.mu.RUnlock()
	return Stats{
		Keys:    keys,
		Sets:    s.mSets.Load(),
		Gets:    s.mGets.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Dels:    s.mDels.Load(),
		Expired: s.mExpired.Load(),
		Updates: s.mUpdates.Load(),
	}
}
