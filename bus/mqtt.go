package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/adamgarcia4/goLearning/fleet/logger"
)

// MQTTConfig configures a connection to an MQTT broker.
type MQTTConfig struct {
	Broker         string // e.g. tcp://localhost:1883
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTTBus carries fleet messages over an MQTT broker. Payloads are the bare
// decimal node id, so robots on other stacks can share the broker.
type MQTTBus struct {
	client mqtt.Client
	qos    byte

	mu   sync.Mutex
	subs map[*mqttSub]struct{}

	log *logger.Scope
}

type mqttSub struct {
	topics map[Topic]bool

	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// DialMQTT connects to the broker in cfg. Subscriptions are restored after an
// automatic reconnect.
func DialMQTT(cfg MQTTConfig) (*MQTTBus, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "fleet-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	b := &MQTTBus{
		qos:  cfg.QoS,
		subs: make(map[*mqttSub]struct{}),
		log:  logger.Named("mqtt"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.log.Printf("Connected to %s", cfg.Broker)
		b.resubscribe()
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		b.log.Warnf("Connection lost: %v", err)
	})

	b.client = mqtt.NewClient(opts)
	tok := b.client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return b, nil
}

// PayloadOnly is true: only the node id crosses the broker.
func (b *MQTTBus) PayloadOnly() bool { return true }

func (b *MQTTBus) Publish(ctx context.Context, msg Message) error {
	tok := b.client.Publish(string(msg.Topic), b.qos, false, EncodePayload(msg.NodeID))
	return wait(ctx, tok)
}

func (b *MQTTBus) Subscribe(ctx context.Context, topics ...Topic) (<-chan Message, error) {
	sub := &mqttSub{
		topics: topicSet(topics),
		ch:     make(chan Message, SubscriberBuffer),
	}

	if err := wait(ctx, b.client.SubscribeMultiple(sub.filters(b.qos), b.handler(sub))); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

// Close disconnects from the broker and ends every subscription.
func (b *MQTTBus) Close() error {
	b.client.Disconnect(250)

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.close()
	}
	return nil
}

func (b *MQTTBus) handler(sub *mqttSub) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		id, err := DecodePayload(m.Payload())
		if err != nil {
			b.log.Warnf("ignoring message on %s: %v", m.Topic(), err)
			return
		}
		msg := Message{
			ID:     uuid.NewString(),
			Topic:  Topic(m.Topic()),
			NodeID: id,
			SentAt: time.Now(),
		}
		if !sub.deliver(msg) {
			b.log.Warnf("subscriber full, dropped %s", msg)
		}
	}
}

func (b *MQTTBus) resubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		b.client.SubscribeMultiple(sub.filters(b.qos), b.handler(sub))
	}
}

func (s *mqttSub) filters(qos byte) map[string]byte {
	f := make(map[string]byte, len(s.topics))
	for t := range s.topics {
		f[string(t)] = qos
	}
	return f
}

// deliver returns false if the message was dropped on a full buffer.
func (s *mqttSub) deliver(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *mqttSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
