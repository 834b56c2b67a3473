// Package election holds the per-robot election state machines: the bully-style
// candidacy Engine and the heartbeat Detector. Both are driven by a
// clockwork.Clock and never block or spawn goroutines; the robot runtime owns
// them and calls them from a single goroutine.
package election

import (
	"fmt"
	"time"
)

// Phase is where a robot stands in the candidacy protocol.
type Phase int

const (
	Idle Phase = iota
	Candidate
	Captain
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Candidate:
		return "candidate"
	case Captain:
		return "captain"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Belief is a robot's local view of who leads the fleet. It converges over
// time but is not authoritative; the registry's captain record is.
type Belief struct {
	IsCaptain bool

	// Captain is the believed captain, valid when HasCaptain is set.
	Captain    int64
	HasCaptain bool

	LastHeartbeat time.Time
	HasHeartbeat  bool
}

func (b Belief) String() string {
	captain := "none"
	if b.HasCaptain {
		captain = fmt.Sprintf("%d", b.Captain)
	}
	return fmt.Sprintf("captain=%s self=%t", captain, b.IsCaptain)
}
