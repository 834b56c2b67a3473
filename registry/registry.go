// Package registry is the fleet's central roster. It hands out robot ids, records
// the authoritative captain, and carries "elect now" requests to robots through
// their liveness polls.
//
// Every operation runs under one mutex covering the membership table, the captain
// record and the election epoch, so Poll's deliver-once semantics and
// Unregister's captain clearing are atomic against concurrent Register and
// RequestElection calls.
package registry

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/adamgarcia4/goLearning/fleet/logger"
)

// TriggerMode selects how an election request reaches robots.
type TriggerMode int

const (
	// TriggerEpoch delivers every request to every live robot once. Each
	// RequestElection opens a new epoch and each member's next poll reports it.
	TriggerEpoch TriggerMode = iota
	// TriggerConsumeOnce is the legacy single flag: the first poll after a
	// request consumes it and every other robot sees nothing.
	TriggerConsumeOnce
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerEpoch:
		return "epoch"
	case TriggerConsumeOnce:
		return "once"
	default:
		return fmt.Sprintf("TriggerMode(%d)", int(m))
	}
}

// ParseTriggerMode maps the CLI spelling to a TriggerMode.
func ParseTriggerMode(s string) (TriggerMode, error) {
	switch s {
	case "", "epoch":
		return TriggerEpoch, nil
	case "once":
		return TriggerConsumeOnce, nil
	default:
		return 0, fmt.Errorf("unknown trigger mode %q (want epoch or once)", s)
	}
}

// Options configures a Registry.
type Options struct {
	TriggerMode TriggerMode
	// VerifyClaims rejects captain reports that do not hold up against the
	// claimant's own candidate set. When false they are logged and accepted.
	VerifyClaims bool
	// StreamDelay is slept between items of StreamAll.
	StreamDelay time.Duration
	// Reports receives an audit record for every captain claim. Nil disables auditing.
	Reports ReportLog
}

// DefaultOptions returns epoch triggers, lenient claims and an in-memory audit log.
func DefaultOptions() Options {
	return Options{
		TriggerMode: TriggerEpoch,
		Reports:     NewMemoryReportLog(DefaultReportHistory),
	}
}

// Registry is the authoritative membership service.
type Registry struct {
	mu    sync.Mutex
	table membershipTable

	epoch   uint64 // bumped by every accepted RequestElection
	pending bool   // TriggerConsumeOnce flag

	opts Options
	log  *logger.Scope
}

// New creates an empty registry.
func New(opts Options) *Registry {
	return &Registry{
		opts: opts,
		log:  logger.Named("registry"),
	}
}

// Register allocates the next id and appends the robot to the table.
// The new member starts at the current epoch so it does not act on
// requests issued before it joined.
func (r *Registry) Register(name string) Node {
	r.mu.Lock()
	n := r.table.add(name, r.epoch)
	r.mu.Unlock()

	r.log.Printf("Registered robot (%d, %s)", n.ID, n.Name)
	return n
}

// Unregister removes the robot with the given id. A removed captain is cleared.
// It returns false if no robot matched.
func (r *Registry) Unregister(id int64) bool {
	r.mu.Lock()
	removed, wasCaptain := r.table.remove(id)
	r.mu.Unlock()

	if !removed {
		r.log.Printf("Robot %d not found", id)
		return false
	}
	r.log.Printf("Unregistered robot (%d)", id)
	if wasCaptain {
		r.log.Printf("Removed captain (%d)", id)
	}
	return true
}

// CheckPresence reports whether a robot with this id is registered.
func (r *Registry) CheckPresence(id int64) bool {
	r.mu.Lock()
	present := r.table.index(id) >= 0
	r.mu.Unlock()

	if present {
		r.log.Printf("Robot available (%d)", id)
	} else {
		r.log.Printf("Robot %d not found", id)
	}
	return present
}

// Poll is the robots' periodic liveness check. An unknown id gets
// Connected=false. A registered id gets Connected=true and, if an election
// request is outstanding for it, ElectionRequested=true exactly once.
func (r *Registry) Poll(id int64) PollResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.table.index(id)
	if idx < 0 {
		r.log.Printf("Robot %d not connected", id)
		return PollResult{Connected: false, Epoch: r.epoch}
	}

	res := PollResult{Connected: true, Epoch: r.epoch}
	switch r.opts.TriggerMode {
	case TriggerConsumeOnce:
		if r.pending {
			r.pending = false
			res.ElectionRequested = true
		}
	default:
		m := &r.table.members[idx]
		if m.seenEpoch < r.epoch {
			m.seenEpoch = r.epoch
			res.ElectionRequested = true
		}
	}

	if res.ElectionRequested {
		r.log.Printf("Robot %d still connected, election requested (epoch %d)", id, r.epoch)
	}
	return res
}

// GetCaptain returns the current captain, if any.
func (r *Registry) GetCaptain() (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table.captain == nil {
		return Node{}, false
	}
	return *r.table.captain, true
}

// ReportCaptain records claim as the authoritative captain.
//
// A claimant that is not registered is never recorded, so the captain always
// names a live member. Beyond that, claims are checked against the claimant's
// own candidate set; with VerifyClaims an implausible claim fails with
// ErrImplausibleClaim, otherwise it is logged and accepted.
func (r *Registry) ReportCaptain(ctx context.Context, claim CaptainClaim) (bool, error) {
	r.mu.Lock()
	reason := r.checkClaimLocked(claim)
	registered := r.table.index(claim.ID) >= 0
	accept := registered && (reason == "" || !r.opts.VerifyClaims)
	if accept {
		r.table.captain = &Node{ID: claim.ID, Name: claim.Name}
	}
	verify := r.opts.VerifyClaims
	reports := r.opts.Reports
	r.mu.Unlock()

	switch {
	case accept && reason == "":
		r.log.Printf("New captain elected (%d)", claim.ID)
	case accept:
		r.log.Warnf("New captain elected (%d) despite implausible claim: %s", claim.ID, reason)
	default:
		r.log.Warnf("Captain claim from %d rejected: %s", claim.ID, reason)
	}

	if reports != nil {
		rep := Report{Claim: claim, Accepted: accept, Reason: reason, ReportedAt: time.Now()}
		if err := reports.Record(ctx, rep); err != nil {
			r.log.Errorf("failed to record captain report: %v", err)
		}
	}

	if !accept && verify {
		return false, fmt.Errorf("%w: %s", ErrImplausibleClaim, reason)
	}
	return accept, nil
}

// checkClaimLocked returns why claim is implausible, or "" if it holds up.
func (r *Registry) checkClaimLocked(claim CaptainClaim) string {
	if r.table.index(claim.ID) < 0 {
		return fmt.Sprintf("robot %d is not registered", claim.ID)
	}
	if len(claim.Candidates) == 0 {
		// Nothing to check against; legacy clients send no candidate set.
		return ""
	}
	if !slices.Contains(claim.Candidates, claim.ID) {
		return fmt.Sprintf("robot %d is missing from its own candidate set", claim.ID)
	}
	if top := slices.Max(claim.Candidates); top != claim.ID {
		return fmt.Sprintf("robot %d did not win its candidate set (highest %d)", claim.ID, top)
	}
	if claim.Epoch > r.epoch {
		return fmt.Sprintf("epoch %d has not been issued (current %d)", claim.Epoch, r.epoch)
	}
	return ""
}

// RequestElection asks the fleet to elect a captain. It fails with
// ErrEmptyFleet when nobody is registered and leaves the trigger untouched.
// It returns the epoch that identifies the request.
func (r *Registry) RequestElection() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.table.members) == 0 {
		r.log.Printf("No robot available, election rejected")
		return r.epoch, ErrEmptyFleet
	}
	r.epoch++
	r.pending = true
	r.log.Printf("New captain election started (epoch %d)", r.epoch)
	return r.epoch, nil
}

// StreamAll lazily yields every registered robot once, in table order. Each
// step reads the live table, so robots added during iteration are included and
// removed ones are skipped; there is no snapshot isolation. The sequence stops
// early when ctx is done.
func (r *Registry) StreamAll(ctx context.Context) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		cursor := int64(-1)
		sent := 0
		for {
			if ctx.Err() != nil {
				return
			}
			r.mu.Lock()
			n, ok := r.table.after(cursor)
			delay := r.opts.StreamDelay
			r.mu.Unlock()
			if !ok {
				r.log.Printf("All %d robots transferred", sent)
				return
			}
			if !yield(n) {
				return
			}
			cursor = n.ID
			sent++

			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Members returns a copy of the table in registration order.
func (r *Registry) Members() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.snapshot()
}

// Count returns the number of live robots.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table.members)
}

// Epoch returns the latest election epoch.
func (r *Registry) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Reports returns the audit log, which may be nil.
func (r *Registry) Reports() ReportLog {
	return r.opts.Reports
}
