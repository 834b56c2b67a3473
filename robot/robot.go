// Package robot is the fleet member runtime. A Robot registers with the
// registry, joins the broadcast bus and runs its election engine and heartbeat
// detector on one event-loop goroutine. Bus deliveries, heartbeat ticks, the
// decision timer and registry poll results all funnel into that loop, so the
// robot's election state has a single writer.
package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/election"
	"github.com/adamgarcia4/goLearning/fleet/logger"
	"github.com/adamgarcia4/goLearning/fleet/registry"
)

// Registry is the part of the registry a robot talks to. registry.LocalClient
// and transport.RegistryClient both satisfy it.
type Registry interface {
	Register(ctx context.Context, name string) (registry.Node, error)
	Unregister(ctx context.Context, id int64) (bool, error)
	Poll(ctx context.Context, id int64) (registry.PollResult, error)
	ReportCaptain(ctx context.Context, claim registry.CaptainClaim) (bool, error)
}

// seenHistory is how many recent message ids a robot remembers to drop
// duplicate deliveries.
const seenHistory = 512

const eventBuffer = 64

// Status is a point-in-time copy of a robot's state.
type Status struct {
	Node         registry.Node
	Phase        election.Phase
	Belief       election.Belief
	Epoch        uint64 // highest election epoch acted on
	Disconnected bool
	Running      bool
}

// Robot is one fleet member.
type Robot struct {
	cfg   *Config
	reg   Registry
	bus   bus.Bus
	clock clockwork.Clock
	log   *logger.Scope

	mu         sync.RWMutex
	status     Status
	started    bool
	registered bool
	stopped    bool

	// Owned by the event loop after Start.
	self         int64
	belief       election.Belief
	engine       *election.Engine
	detector     *election.Detector
	round        election.Round
	decide       clockwork.Timer
	acted        uint64
	disconnected bool
	deaf         bool   // bus subscription lost and not yet restored
	missed       uint64 // election epoch polled while deaf
	epochless    bool   // the bus strips Message.Epoch
	roundOpened  bool   // a round started since the last poll
	seen         map[string]struct{}
	seenOrder    []string

	polls  chan registry.PollResult
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a robot. It does nothing until Start.
func New(cfg *Config, reg Registry, b bus.Bus) (*Robot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Robot{
		cfg:    cfg,
		reg:    reg,
		bus:    b,
		clock:  cfg.clock(),
		log:    logger.Named(cfg.Name),

		epochless: !bus.CarriesEpoch(b),
		seen:   make(map[string]struct{}, seenHistory),
		polls:  make(chan registry.PollResult),
		events: make(chan Event, eventBuffer),
	}, nil
}

// Start registers with the registry, subscribes to the bus and starts the
// robot's loops. ctx bounds registration only.
func (r *Robot) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.callTimeout())
	n, err := r.reg.Register(callCtx, r.cfg.Name)
	cancel()
	if err != nil {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		return fmt.Errorf("failed to register: %w", err)
	}

	r.self = n.ID
	r.log = logger.Named(fmt.Sprintf("robot-%d", n.ID))
	r.ctx, r.cancel = context.WithCancel(context.Background())

	msgs, err := r.bus.Subscribe(r.ctx, bus.AllTopics...)
	if err != nil {
		r.cancel()
		r.unregister(n.ID)
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.engine = election.NewEngine(n.ID, &r.belief, r.clock, r.cfg.DecisionWindow)
	r.detector = election.NewDetector(n.ID, &r.belief, r.clock, r.cfg.HeartbeatTimeout)

	r.mu.Lock()
	r.status = Status{Node: n, Phase: election.Idle, Running: true}
	r.registered = true
	r.mu.Unlock()

	r.log.Printf("%s with ID=%d and Captain=false connected", n.Name, n.ID)

	r.wg.Add(2)
	go r.run(msgs)
	go r.pollLoop()
	return nil
}

// Stop ends the robot's loops and unregisters it. An election in progress is
// abandoned.
func (r *Robot) Stop() error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return ErrNotStarted
	}
	r.stopped = true
	r.mu.Unlock()

	r.log.Printf("Stopping...")
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	r.status.Running = false
	r.mu.Unlock()

	if r.disconnected {
		r.log.Printf("Already removed from the registry")
		return nil
	}
	return r.unregister(r.self)
}

func (r *Robot) unregister(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.callTimeout())
	defer cancel()

	ok, err := r.reg.Unregister(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to unregister: %w", err)
	}
	if ok {
		r.log.Printf("Robot disconnected")
	} else {
		r.log.Printf("Robot could not disconnect")
	}
	return nil
}

// ID returns the registry-assigned id, or -1 before Start.
func (r *Robot) ID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registered {
		return -1
	}
	return r.status.Node.ID
}

func (r *Robot) Name() string {
	return r.cfg.Name
}

// Status returns a copy of the robot's state as of its last loop iteration.
func (r *Robot) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Events delivers notable transitions. Events are dropped when nobody reads.
func (r *Robot) Events() <-chan Event {
	return r.events
}

func (r *Robot) run(msgs <-chan bus.Message) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer func() {
		if r.decide != nil {
			r.decide.Stop()
		}
	}()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				if r.ctx.Err() != nil {
					return
				}
				r.goDeaf()
				break
			}
			r.handleMessage(msg)
		case <-ticker.Chan():
			if msgs == nil {
				msgs = r.resubscribe()
			}
			r.tick()
		case <-r.decideC():
			r.decideRound()
		case res := <-r.polls:
			r.handlePoll(res)
		}
		r.publishStatus()
	}
}

// goDeaf drops out of any open round. No election starts or closes here
// until the subscription is back.
func (r *Robot) goDeaf() {
	r.log.Warnf("Bus subscription closed, retrying on the next heartbeat tick")
	r.deaf = true
	if r.decide != nil {
		r.decide.Stop()
		r.decide = nil
	}
	r.engine.Abandon()
}

// resubscribe returns nil while the bus is still unreachable.
func (r *Robot) resubscribe() <-chan bus.Message {
	msgs, err := r.bus.Subscribe(r.ctx, bus.AllTopics...)
	if err != nil {
		r.log.Errorf("resubscribe failed: %v", err)
		return nil
	}
	r.deaf = false
	r.detector.Reset()
	r.log.Printf("Resubscribed to the bus")

	if r.missed > r.acted {
		r.acted = r.missed
		r.triggerElection(r.missed)
	}
	return msgs
}

func (r *Robot) decideC() <-chan time.Time {
	if r.decide == nil {
		return nil
	}
	return r.decide.Chan()
}

func (r *Robot) handleMessage(msg bus.Message) {
	if r.duplicate(msg.ID) {
		return
	}

	switch msg.Topic {
	case bus.TopicStatus:
		if r.detector.ObserveHeartbeat(msg.NodeID) {
			r.engine.StepDown(msg.NodeID)
			r.log.Warnf("Captain (%d) outranks us, stepping down", msg.NodeID)
			r.emit(EventSteppedDown, msg.NodeID)
		}

	case bus.TopicElectionStart:
		if msg.Epoch > r.acted {
			r.acted = msg.Epoch
		}
		if msg.NodeID == r.self {
			// the round was opened when the message was sent
			return
		}
		r.startRound()

	case bus.TopicElectionCandidate:
		if msg.NodeID != r.self {
			r.log.Printf("Robot (%d) candidates as captain", msg.NodeID)
		}
		r.engine.ObserveCandidate(msg.NodeID)

	case bus.TopicElectionResult:
		if msg.NodeID == r.self {
			return
		}
		if r.engine.ObserveResult(msg.NodeID) {
			r.log.Printf("New captain is (%d)", msg.NodeID)
			r.emit(EventNewCaptain, msg.NodeID)
		}

	default:
		r.log.Warnf("ignoring message on unknown topic %q", msg.Topic)
	}
}

// duplicate reports whether id was already handled. Messages without an id
// are never treated as duplicates.
func (r *Robot) duplicate(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	r.seenOrder = append(r.seenOrder, id)
	if len(r.seenOrder) > seenHistory {
		delete(r.seen, r.seenOrder[0])
		r.seenOrder = r.seenOrder[1:]
	}
	return false
}

func (r *Robot) tick() {
	switch r.detector.Tick() {
	case election.VerdictHeartbeat:
		r.publish(bus.TopicStatus, 0)
	case election.VerdictTimeout:
		if r.disconnected {
			return
		}
		if r.deaf {
			r.log.Printf("Missing heartbeat from captain, not listening to the bus yet")
			return
		}
		r.log.Printf("Missing heartbeat from captain")
		r.emit(EventHeartbeatTimeout, r.self)
		r.triggerElection(0)
	}
}

// triggerElection tells the fleet to elect and opens the local round.
func (r *Robot) triggerElection(epoch uint64) {
	r.log.Printf("Starting new captain election...")
	r.publish(bus.TopicElectionStart, epoch)
	r.startRound()
}

func (r *Robot) startRound() {
	if r.disconnected {
		r.log.Printf("Not a fleet member, staying out of the election")
		return
	}

	r.round = r.engine.StartRound()
	r.roundOpened = true
	r.detector.Reset()
	if r.decide != nil {
		r.decide.Stop()
	}
	r.decide = r.clock.NewTimer(r.cfg.DecisionWindow)

	r.log.Printf("New captain election started")
	r.emit(EventElectionStarted, r.self)

	r.log.Printf("Candidating for captain election (%d)", r.self)
	r.publish(bus.TopicElectionCandidate, 0)
}

func (r *Robot) decideRound() {
	r.decide = nil

	out, err := r.engine.Decide(r.round.ID)
	if err != nil {
		if !errors.Is(err, election.ErrStaleRound) {
			r.log.Errorf("election round %d: %v", r.round.ID, err)
		}
		return
	}
	if !out.Won {
		r.log.Printf("Rejecting candidacy, (%d) outranks us", out.Winner)
		return
	}

	r.log.Printf("Publishing myself as captain (%d)", r.self)
	r.publish(bus.TopicElectionResult, 0)
	r.emit(EventElected, r.self)
	r.reportCaptain(registry.CaptainClaim{
		ID:         r.self,
		Name:       r.cfg.Name,
		Epoch:      r.acted,
		Candidates: out.Candidates,
	})
}

// reportCaptain tells the registry off the loop so a slow registry does not
// hold up the election.
func (r *Robot) reportCaptain(claim registry.CaptainClaim) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.callTimeout())
		defer cancel()

		ok, err := r.reg.ReportCaptain(ctx, claim)
		switch {
		case err != nil:
			r.log.Errorf("Captain registration failed: %v", err)
		case ok:
			r.log.Printf("Robot registered as captain")
		default:
			r.log.Warnf("Captain registration failed")
		}
	}()
}

func (r *Robot) handlePoll(res registry.PollResult) {
	if !res.Connected {
		if !r.disconnected {
			r.disconnected = true
			r.engine.Resign()
			r.log.Warnf("Robot is disconnected")
			r.emit(EventDisconnected, r.self)
		}
		return
	}

	roundOpened := r.roundOpened
	r.roundOpened = false

	if !res.ElectionRequested {
		return
	}
	if res.Epoch <= r.acted {
		r.log.Printf("Election epoch %d already under way", res.Epoch)
		return
	}
	if r.deaf {
		r.log.Printf("Election epoch %d requested, waiting for the bus", res.Epoch)
		r.missed = res.Epoch
		return
	}
	r.acted = res.Epoch
	if r.epochless && roundOpened {
		// Start messages carry no epoch here. A round opened since the
		// previous poll answers this request.
		r.log.Printf("Election epoch %d already under way", res.Epoch)
		return
	}
	r.triggerElection(res.Epoch)
}

func (r *Robot) pollLoop() {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.poll()
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// poll asks the registry whether this robot is still a member. Failures are
// logged and retried on the next tick.
func (r *Robot) poll() {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.callTimeout())
	defer cancel()

	res, err := r.reg.Poll(ctx, r.self)
	if err != nil {
		if r.ctx.Err() == nil {
			r.log.Errorf("poll failed: %v", err)
		}
		return
	}

	select {
	case r.polls <- res:
	case <-r.ctx.Done():
	}
}

func (r *Robot) publish(topic bus.Topic, epoch uint64) {
	msg := bus.NewMessage(topic, r.self)
	msg.Epoch = epoch

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.callTimeout())
	defer cancel()
	if err := r.bus.Publish(ctx, msg); err != nil {
		r.log.Errorf("failed to publish %s: %v", topic, err)
	}
}

func (r *Robot) publishStatus() {
	s := Status{
		Phase:        r.engine.Phase(),
		Belief:       r.belief,
		Epoch:        r.acted,
		Disconnected: r.disconnected,
		Running:      true,
	}

	r.mu.Lock()
	s.Node = r.status.Node
	r.status = s
	r.mu.Unlock()
}
