// Package relay implements the stateless store-nothing relay: a directory of
// connected devices plus frame routing between them. Messages to absent
// recipients are dropped, never queued.
package relay

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxlink/pkg/memkv"
	"voxlink/pkg/protocol"
)

// client is one registered device link. send encapsulates the connection and
// wire codec; the directory never touches frames directly.
type client struct {
	id      string
	name    string
	friends []string
	send    func(protocol.Envelope) error
	since   time.Time
}

// Directory maps device ids to live links and keeps a TTL'd registry of
// devices seen recently, so the status surface can list offline peers too.
type Directory struct {
	mu      sync.RWMutex
	clients map[string]*client

	registry *memkv.Store
	ttl      time.Duration
	nowFn    func() time.Time
}

// registryRecord is the persisted per-device registry entry.
type registryRecord struct {
	Name     string    `json:"name,omitempty"`
	Friends  []string  `json:"friends,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

const registryPrefix = "device:"

func NewDirectory(registry *memkv.Store, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Directory{
		clients:  make(map[string]*client),
		registry: registry,
		ttl:      ttl,
		nowFn:    time.Now,
	}
}

// Register binds a device id to a live link, displacing any previous link for
// the same id. It returns the handle used to unregister this session and the
// subset of the declared friends that are online right now. Devices listing
// the registrant as a friend are told it came online.
func (d *Directory) Register(id, name string, friends []string, send func(protocol.Envelope) error) (*client, []string) {
	d.mu.Lock()
	prev := d.clients[id]
	c := &client{id: id, name: name, friends: friends, send: send, since: d.nowFn()}
	d.clients[id] = c
	online := make([]string, 0, len(friends))
	for _, fid := range friends {
		if _, ok := d.clients[fid]; ok && fid != id {
			online = append(online, fid)
		}
	}
	d.mu.Unlock()

	if prev != nil {
		zap.L().Warn("device re-registered, displacing previous link", zap.String("device", id))
	}
	d.persist(c)
	d.broadcastPresence(id, true)
	return c, online
}

// Unregister removes the session if it is still the current link for its id.
// A displaced session's teardown must not knock out its successor.
func (d *Directory) Unregister(c *client) {
	if c == nil {
		return
	}
	d.mu.Lock()
	cur, ok := d.clients[c.id]
	if !ok || cur != c {
		d.mu.Unlock()
		return
	}
	delete(d.clients, c.id)
	d.mu.Unlock()

	zap.L().Info("device unregistered", zap.String("device", c.id))
	d.broadcastPresence(c.id, false)
}

// Deliver sends one envelope to the recipient's live link. False means the
// recipient is offline or its link just failed; the caller decides whether
// that deserves an advisory. Nothing is ever queued.
func (d *Directory) Deliver(recipient string, env protocol.Envelope) bool {
	d.mu.RLock()
	c := d.clients[recipient]
	d.mu.RUnlock()
	if c == nil {
		return false
	}
	if err := c.send(env); err != nil {
		zap.L().Warn("delivery failed", zap.String("device", recipient),
			zap.String("type", string(env.Type)), zap.Error(err))
		return false
	}
	return true
}

// Touch refreshes the registry TTL for a device that showed signs of life.
func (d *Directory) Touch(id string) {
	d.registry.Expire(registryPrefix+id, d.ttl)
}

// Online reports whether a device has a live link.
func (d *Directory) Online(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.clients[id]
	return ok
}

// Count returns the number of live links.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}

// broadcastPresence notifies every online device that declared id as a friend.
func (d *Directory) broadcastPresence(id string, online bool) {
	typ := protocol.TypeFriendOnline
	if !online {
		typ = protocol.TypeFriendOffline
	}
	env := protocol.Envelope{Type: typ, FriendID: id}

	d.mu.RLock()
	targets := make([]*client, 0, len(d.clients))
	for _, c := range d.clients {
		if c.id != id && slices.Contains(c.friends, id) {
			targets = append(targets, c)
		}
	}
	d.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(env); err != nil {
			zap.L().Debug("presence notify failed", zap.String("device", c.id), zap.Error(err))
		}
	}
}

func (d *Directory) persist(c *client) {
	rec := registryRecord{Name: c.name, Friends: c.friends, LastSeen: d.nowFn()}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	d.registry.Set(registryPrefix+c.id, b, d.ttl)
}

// DeviceInfo is one row of the status surface.
type DeviceInfo struct {
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name,omitempty"`
	Friends     []string  `json:"friends,omitempty"`
	Online      bool      `json:"online"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}

// Snapshot merges live links with recent registry records. Offline devices
// appear as long as their registry entry has not expired.
func (d *Directory) Snapshot() []DeviceInfo {
	out := make(map[string]DeviceInfo)
	for _, key := range d.registry.Keys() {
		if len(key) <= len(registryPrefix) || key[:len(registryPrefix)] != registryPrefix {
			continue
		}
		id := key[len(registryPrefix):]
		b, ok := d.registry.Get(key)
		if !ok {
			continue
		}
		var rec registryRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			continue
		}
		out[id] = DeviceInfo{DeviceID: id, Name: rec.Name, Friends: rec.Friends, LastSeen: rec.LastSeen}
	}

	d.mu.RLock()
	for id, c := range d.clients {
		info := out[id]
		info.DeviceID = id
		info.Name = c.name
		info.Friends = c.friends
		info.Online = true
		info.ConnectedAt = c.since
		out[id] = info
	}
	d.mu.RUnlock()

	infos := make([]DeviceInfo, 0, len(out))
	for _, info := range out {
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b DeviceInfo) int {
		if a.DeviceID < b.DeviceID {
			return -1
		}
		if a.DeviceID > b.DeviceID {
			return 1
		}
		return 0
	})
	return infos
}

// Lookup returns the status row for one device id.
func (d *Directory) Lookup(id string) (DeviceInfo, bool) {
	for _, info := range d.Snapshot() {
		if info.DeviceID == id {
			return info, true
		}
	}
	return DeviceInfo{}, false
}
