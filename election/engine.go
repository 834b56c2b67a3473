package election

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/exp/slices"
)

// DefaultWindow is how long candidacies are collected before a winner is picked.
const DefaultWindow = 3 * time.Second

var (
	// ErrStaleRound is returned by Decide for a round that has been replaced
	// by a newer one or already decided.
	ErrStaleRound = errors.New("stale election round")
	// ErrWindowOpen is returned by Decide before the round's deadline.
	ErrWindowOpen = errors.New("decision window still open")
	// ErrNoCandidates cannot happen while the engine seeds its own id into
	// every round.
	ErrNoCandidates = errors.New("no candidates in round")
)

// Round identifies one candidacy window.
type Round struct {
	ID       uint64
	Deadline time.Time
}

// Outcome is the result of closing a round.
type Outcome struct {
	Round      uint64
	Winner     int64
	Won        bool
	Candidates []int64 // ascending
}

// Engine runs the bully-style candidacy protocol for one robot.
//
// A round starts with StartRound, collects every candidacy passed to
// ObserveCandidate until its deadline, and closes with Decide. The highest
// id wins. Starting a round while one is open replaces it.
type Engine struct {
	self   int64
	clock  clockwork.Clock
	window time.Duration
	belief *Belief

	phase      Phase
	round      uint64
	deadline   time.Time
	candidates map[int64]time.Time // id -> when its candidacy arrived

	// candidacies seen outside a round, kept for one window
	early map[int64]time.Time
}

// NewEngine creates an idle engine for robot self. belief is shared with the
// robot's Detector.
func NewEngine(self int64, belief *Belief, clock clockwork.Clock, window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{
		self:   self,
		clock:  clock,
		window: window,
		belief: belief,
		early:  make(map[int64]time.Time),
	}
}

// StartRound enters Candidate. The candidate set is reset to this robot plus
// any candidacies that arrived within one window before the round opened,
// including those collected by a round it replaces. The caller broadcasts the
// robot's own candidacy and schedules Decide at the deadline.
func (e *Engine) StartRound() Round {
	now := e.clock.Now()

	if e.phase == Candidate {
		for id, seen := range e.candidates {
			if id != e.self {
				e.early[id] = seen
			}
		}
	}

	e.round++
	e.deadline = now.Add(e.window)
	e.candidates = map[int64]time.Time{e.self: now}
	for id, seen := range e.early {
		if now.Sub(seen) <= e.window {
			e.candidates[id] = seen
		}
	}
	clear(e.early)
	e.phase = Candidate

	return Round{ID: e.round, Deadline: e.deadline}
}

// ObserveCandidate records a candidacy. Repeats are idempotent.
func (e *Engine) ObserveCandidate(id int64) {
	if e.phase == Candidate {
		e.candidates[id] = e.clock.Now()
		return
	}
	e.early[id] = e.clock.Now()
}

// Abandon closes the open round without deciding it. Pending Decide calls
// for it fail with ErrStaleRound.
func (e *Engine) Abandon() {
	if e.phase == Candidate {
		e.phase = Idle
	}
	e.candidates = nil
}

// Decide closes round and picks the highest candidate. The winner moves to
// Captain; everyone else goes back to Idle and waits for the result broadcast.
func (e *Engine) Decide(round uint64) (Outcome, error) {
	if e.phase != Candidate || round != e.round {
		return Outcome{}, ErrStaleRound
	}
	if e.clock.Now().Before(e.deadline) {
		return Outcome{}, ErrWindowOpen
	}
	if len(e.candidates) == 0 {
		return Outcome{}, ErrNoCandidates
	}

	ids := make([]int64, 0, len(e.candidates))
	for id := range e.candidates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	winner := ids[len(ids)-1]

	e.candidates = nil
	out := Outcome{Round: round, Winner: winner, Won: winner == e.self, Candidates: ids}
	if out.Won {
		e.phase = Captain
		e.belief.IsCaptain = true
		e.belief.Captain = e.self
		e.belief.HasCaptain = true
	} else {
		e.phase = Idle
		e.belief.IsCaptain = false
	}
	return out, nil
}

// ObserveResult applies a result broadcast. A result naming another robot
// makes it the believed captain. It reports whether the belief changed.
func (e *Engine) ObserveResult(winner int64) bool {
	if winner == e.self {
		return false
	}
	changed := e.belief.IsCaptain || !e.belief.HasCaptain || e.belief.Captain != winner
	e.belief.IsCaptain = false
	e.belief.Captain = winner
	e.belief.HasCaptain = true
	if e.phase == Captain {
		e.phase = Idle
	}
	return changed
}

// StepDown gives up captaincy in favour of captain.
func (e *Engine) StepDown(captain int64) {
	e.belief.IsCaptain = false
	e.belief.Captain = captain
	e.belief.HasCaptain = true
	if e.phase == Captain {
		e.phase = Idle
	}
}

// Resign drops any belief about the captain. Used when the robot finds it is
// no longer a fleet member.
func (e *Engine) Resign() {
	e.belief.IsCaptain = false
	e.belief.HasCaptain = false
	if e.phase == Captain {
		e.phase = Idle
	}
}

func (e *Engine) Phase() Phase { return e.phase }

// Round returns the id of the latest round started.
func (e *Engine) Round() uint64 { return e.round }

// Candidates returns the open round's candidates in ascending order.
func (e *Engine) Candidates() []int64 {
	ids := make([]int64, 0, len(e.candidates))
	for id := range e.candidates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
