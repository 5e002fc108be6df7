package relay

import (
	"testing"
	"time"

	"voxlink/pkg/memkv"
	"voxlink/pkg/protocol"
)

type capture struct {
	envs []protocol.Envelope
}

func (c *capture) send(env protocol.Envelope) error {
	c.envs = append(c.envs, env)
	return nil
}

func (c *capture) byType(t protocol.Type) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range c.envs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	reg := memkv.New(memkv.Options{JanitorInterval: time.Hour})
	t.Cleanup(reg.Close)
	return NewDirectory(reg, time.Minute)
}

func TestRegisterReportsOnlineFriends(t *testing.T) {
	d := newTestDirectory(t)
	var a, b, c capture

	d.Register("dev-a", "A", []string{"dev-b", "dev-c"}, a.send)
	d.Register("dev-b", "B", []string{"dev-a"}, b.send)

	_, online := d.Register("dev-c", "C", []string{"dev-a", "dev-b", "dev-x"}, c.send)
	if len(online) != 2 || online[0] != "dev-a" || online[1] != "dev-b" {
		t.Fatalf("online friends = %v, want [dev-a dev-b]", online)
	}
}

func TestPresenceFanoutRespectsFriendLists(t *testing.T) {
	d := newTestDirectory(t)
	var fan, bystander, x capture

	d.Register("dev-fan", "", []string{"dev-x"}, fan.send)
	d.Register("dev-bystander", "", []string{"dev-other"}, bystander.send)

	d.Register("dev-x", "", nil, x.send)
	if got := fan.byType(protocol.TypeFriendOnline); len(got) != 1 || got[0].FriendID != "dev-x" {
		t.Fatalf("fan notifications = %v", fan.envs)
	}
	if got := bystander.byType(protocol.TypeFriendOnline); len(got) != 0 {
		t.Fatalf("bystander must not hear about dev-x: %v", bystander.envs)
	}
}

func TestDisplacedSessionKeepsSuccessor(t *testing.T) {
	d := newTestDirectory(t)
	var one, two capture

	first, _ := d.Register("dev-a", "", nil, one.send)
	d.Register("dev-a", "", nil, two.send)

	// the displaced session tearing down must not evict its successor
	d.Unregister(first)
	if !d.Online("dev-a") {
		t.Fatalf("successor link evicted by stale unregister")
	}
}

func TestDeliverToOfflineRecipient(t *testing.T) {
	d := newTestDirectory(t)
	if d.Deliver("dev-ghost", protocol.Envelope{Type: protocol.TypeVoiceMessage}) {
		t.Fatalf("delivery to absent device must fail")
	}
}

func TestSnapshotKeepsRecentOfflineDevices(t *testing.T) {
	d := newTestDirectory(t)
	var a capture

	cl, _ := d.Register("dev-a", "Anna", []string{"dev-b"}, a.send)
	d.Unregister(cl)

	infos := d.Snapshot()
	if len(infos) != 1 {
		t.Fatalf("snapshot = %v, want one record", infos)
	}
	if infos[0].DeviceID != "dev-a" || infos[0].Online || infos[0].Name != "Anna" {
		t.Fatalf("offline record wrong: %+v", infos[0])
	}

	if _, ok := d.Lookup("dev-a"); !ok {
		t.Fatalf("lookup must still find a recently seen device")
	}
}
