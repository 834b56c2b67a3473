package election

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultHeartbeatInterval = 2 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
)

// Verdict is what a Detector tick asks the robot to do.
type Verdict int

const (
	VerdictNone Verdict = iota
	// VerdictHeartbeat: this robot is captain, broadcast a heartbeat.
	VerdictHeartbeat
	// VerdictTimeout: the captain has gone quiet, broadcast election-start.
	VerdictTimeout
)

func (v Verdict) String() string {
	switch v {
	case VerdictHeartbeat:
		return "heartbeat"
	case VerdictTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Detector watches captain heartbeats for one robot. Silence is measured from
// the last heartbeat, or from when the robot joined if it has never seen one,
// so a fresh follower waits a full timeout before electing.
type Detector struct {
	self    int64
	clock   clockwork.Clock
	timeout time.Duration
	belief  *Belief

	ref time.Time // start of the current silence
}

func NewDetector(self int64, belief *Belief, clock clockwork.Clock, timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return &Detector{
		self:    self,
		clock:   clock,
		timeout: timeout,
		belief:  belief,
		ref:     clock.Now(),
	}
}

// Tick is called every heartbeat interval.
func (d *Detector) Tick() Verdict {
	if d.belief.IsCaptain {
		return VerdictHeartbeat
	}
	if d.Silence() > d.timeout {
		d.ref = d.clock.Now()
		return VerdictTimeout
	}
	return VerdictNone
}

// ObserveHeartbeat records a heartbeat from captain from. A captain that
// hears a higher id's heartbeat should step down; the return value says so.
func (d *Detector) ObserveHeartbeat(from int64) (stepDown bool) {
	now := d.clock.Now()
	d.belief.LastHeartbeat = now
	d.belief.HasHeartbeat = true
	d.ref = now

	if from == d.self {
		return false
	}
	if d.belief.IsCaptain {
		return from > d.self
	}
	d.belief.Captain = from
	d.belief.HasCaptain = true
	return false
}

// Reset restarts the silence clock. Called when a round opens so the round
// itself is not mistaken for a dead captain.
func (d *Detector) Reset() {
	d.ref = d.clock.Now()
}

// Silence is how long the captain has been quiet.
func (d *Detector) Silence() time.Duration {
	return d.clock.Since(d.ref)
}
