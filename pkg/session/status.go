package session

// Status is the visual state of one friend's indicator.
type Status string

const (
	StatusPulsingRed   Status = "pulsing_red"   // I am recording toward this friend
	StatusRainbowCycle Status = "rainbow"       // friend is recording toward me
	StatusPulsingGreen Status = "pulsing_green" // unheard received message(s)
	StatusSolidBlue    Status = "solid_blue"    // sent message not yet heard
	StatusSolidGreen   Status = "solid_green"   // friend online
	StatusOff          Status = "off"
)

// Facts are the per-friend inputs to the status resolver.
type Facts struct {
	RecordingToward bool
	FriendRecording bool
	UnheardReceived int
	SentUnheard     bool
	Online          bool
}

// statusRules is the priority table, evaluated top-down; the first matching
// predicate wins. Keeping it as data makes the ordering auditable.
var statusRules = []struct {
	when   func(Facts) bool
	status Status
}{
	{func(f Facts) bool { return f.RecordingToward }, StatusPulsingRed},
	{func(f Facts) bool { return f.FriendRecording }, StatusRainbowCycle},
	{func(f Facts) bool { return f.UnheardReceived > 0 }, StatusPulsingGreen},
	{func(f Facts) bool { return f.SentUnheard }, StatusSolidBlue},
	{func(f Facts) bool { return f.Online }, StatusSolidGreen},
}

// ResolveStatus maps session facts to a visual status.
func ResolveStatus(f Facts) Status {
	for _, r := range statusRules {
		if r.when(f) {
			return r.status
		}
	}
	return StatusOff
}
