package robot

import (
	"fmt"
	"time"
)

// EventKind names a robot transition worth surfacing.
type EventKind int

const (
	EventElectionStarted EventKind = iota
	// EventElected: this robot won a round and announced itself.
	EventElected
	// EventNewCaptain: another robot's win was announced.
	EventNewCaptain
	// EventSteppedDown: this captain heard a higher captain's heartbeat.
	EventSteppedDown
	EventHeartbeatTimeout
	// EventDisconnected: the registry no longer knows this robot.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventElectionStarted:
		return "election-started"
	case EventElected:
		return "elected"
	case EventNewCaptain:
		return "new-captain"
	case EventSteppedDown:
		return "stepped-down"
	case EventHeartbeatTimeout:
		return "heartbeat-timeout"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is emitted by a robot's loop. Subject is the robot the event is
// about: the new captain, or the robot itself.
type Event struct {
	Kind    EventKind
	Robot   int64
	Subject int64
	Epoch   uint64
	At      time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("robot %d: %s (%d)", e.Robot, e.Kind, e.Subject)
}

func (r *Robot) emit(kind EventKind, subject int64) {
	ev := Event{
		Kind:    kind,
		Robot:   r.self,
		Subject: subject,
		Epoch:   r.acted,
		At:      r.clock.Now(),
	}
	select {
	case r.events <- ev:
	default:
	}
}
