// Package bus is the fleet's broadcast channel. Delivery is best effort: messages
// may be dropped, duplicated or reordered, and every subscriber (the publisher
// included) receives its own copy.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic names one broadcast stream. The values are the MQTT topic names robots
// have always used, so an MQTT bus needs no mapping.
type Topic string

const (
	TopicElectionStart     Topic = "robots/election/start"
	TopicElectionCandidate Topic = "robots/election/candidate"
	TopicElectionResult    Topic = "robots/election/result"
	TopicStatus            Topic = "robots/status" // captain heartbeat
)

// AllTopics is every topic a robot subscribes to.
var AllTopics = []Topic{
	TopicElectionStart,
	TopicElectionCandidate,
	TopicElectionResult,
	TopicStatus,
}

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// Message is one broadcast. NodeID is the payload: the publisher on
// election-start, the candidate, the winner, or the captain on a heartbeat.
// Epoch optionally names the registry election request an election-start
// answers. It does not survive an MQTT hop.
type Message struct {
	ID     string    `json:"id"`
	Topic  Topic     `json:"topic"`
	NodeID int64     `json:"node_id"`
	Epoch  uint64    `json:"epoch,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// NewMessage stamps a fresh message for topic carrying nodeID.
func NewMessage(topic Topic, nodeID int64) Message {
	return Message{
		ID:     uuid.NewString(),
		Topic:  topic,
		NodeID: nodeID,
		SentAt: time.Now(),
	}
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %d", m.Topic, m.NodeID)
}

// Bus publishes and subscribes to topics.
type Bus interface {
	// Publish hands msg to the channel. A nil error does not mean delivery.
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns a channel of messages on topics. The channel is closed
	// when ctx is done or the bus is closed.
	Subscribe(ctx context.Context, topics ...Topic) (<-chan Message, error)
	Close() error
}

// PayloadOnly is implemented by buses that carry nothing but the node id.
// Message.Epoch is always zero on delivery from such a bus.
type PayloadOnly interface {
	PayloadOnly() bool
}

// CarriesEpoch reports whether b delivers Message.Epoch.
func CarriesEpoch(b Bus) bool {
	p, ok := b.(PayloadOnly)
	return !ok || !p.PayloadOnly()
}

// EncodePayload renders a node id the way it travels on the wire: a plain
// decimal integer.
func EncodePayload(nodeID int64) []byte {
	return []byte(strconv.FormatInt(nodeID, 10))
}

// DecodePayload parses a plain decimal node id.
func DecodePayload(p []byte) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(p)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id payload %q: %w", p, err)
	}
	return id, nil
}

func topicSet(topics []Topic) map[Topic]bool {
	if len(topics) == 0 {
		topics = AllTopics
	}
	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return set
}
