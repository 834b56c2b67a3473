package bus

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/adamgarcia4/goLearning/fleet/logger"
)

// SubscriberBuffer is how many undelivered messages a subscriber may queue
// before further messages to it are dropped.
const SubscriberBuffer = 256

// Faults makes a MemoryBus misbehave the way a real broadcast channel can.
type Faults struct {
	DropProb float64 // chance a delivery to one subscriber is lost
	DupeProb float64 // chance a delivery to one subscriber arrives twice
}

type subscription struct {
	topics map[Topic]bool
	ch     chan Message
}

// MemoryBus is an in-process broadcast channel shared by every robot in the
// process.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	faults Faults
	rngMu  sync.Mutex
	rng    *rand.Rand

	log *logger.Scope
}

// NewMemoryBus creates a reliable in-process bus.
func NewMemoryBus() *MemoryBus {
	return NewFaultyMemoryBus(Faults{})
}

// NewFaultyMemoryBus creates an in-process bus that drops and duplicates
// deliveries with the given probabilities.
func NewFaultyMemoryBus(f Faults) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[uint64]*subscription),
		faults: f,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:    logger.Named("bus"),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.subs {
		if !sub.topics[msg.Topic] {
			continue
		}
		copies := 1
		if b.roll(b.faults.DropProb) {
			copies = 0
		} else if b.roll(b.faults.DupeProb) {
			copies = 2
		}
		for i := 0; i < copies; i++ {
			select {
			case sub.ch <- msg:
			default:
				b.log.Warnf("subscriber full, dropped %s", msg)
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topics ...Topic) (<-chan Message, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	id := b.nextID
	b.nextID++
	sub := &subscription{
		topics: topicSet(topics),
		ch:     make(chan Message, SubscriberBuffer),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}()

	return sub.ch, nil
}

// Close ends every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBus) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64() < p
}
