package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/logger"
)

const brokerServiceName = "fleet.v1.Broker"

type brokerHandler interface {
	Publish(context.Context, *bus.Message) (*Empty, error)
	Subscribe(*SubscribeRequest, grpc.ServerStream) error
}

func _Broker_Subscribe_Handler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(brokerHandler).Subscribe(in, stream)
}

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: brokerServiceName,
	HandlerType: (*brokerHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary(brokerServiceName, "Publish", brokerHandler.Publish),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       _Broker_Subscribe_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "fleet/v1/broker",
}

// Broker relays fleet broadcasts between robots that reach it over gRPC.
// Every published message fans out to all subscribers through an in-memory
// bus, so that bus's fault injection applies to remote robots too.
type Broker struct {
	bus *bus.MemoryBus
	log *logger.Scope
}

var _ brokerHandler = (*Broker)(nil)

func NewBroker(b *bus.MemoryBus) *Broker {
	return &Broker{bus: b, log: logger.Named("broker")}
}

func (b *Broker) Publish(ctx context.Context, msg *bus.Message) (*Empty, error) {
	if err := b.bus.Publish(ctx, *msg); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (b *Broker) Subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	ch, err := b.bus.Subscribe(stream.Context(), req.Topics...)
	if err != nil {
		return toStatus(err)
	}
	b.log.Printf("Subscriber connected (%d topics)", len(req.Topics))
	defer b.log.Printf("Subscriber disconnected")

	for msg := range ch {
		if err := stream.SendMsg(&msg); err != nil {
			return err
		}
	}
	return nil
}

// BrokerBus is a bus.Bus backed by a remote Broker.
type BrokerBus struct {
	conn grpc.ClientConnInterface

	mu      sync.Mutex
	cancels []context.CancelFunc
	closed  bool
}

var _ bus.Bus = (*BrokerBus)(nil)

func NewBrokerBus(conn grpc.ClientConnInterface) *BrokerBus {
	return &BrokerBus{conn: conn}
}

func (b *BrokerBus) Publish(ctx context.Context, msg bus.Message) error {
	if b.isClosed() {
		return bus.ErrClosed
	}
	if err := b.conn.Invoke(ctx, "/"+brokerServiceName+"/Publish", &msg, &Empty{}); err != nil {
		return fromStatus(err)
	}
	return nil
}

func (b *BrokerBus) Subscribe(ctx context.Context, topics ...bus.Topic) (<-chan bus.Message, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, bus.ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	stream, err := b.conn.NewStream(ctx, &brokerServiceDesc.Streams[0], "/"+brokerServiceName+"/Subscribe")
	if err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(&SubscribeRequest{Topics: topics}); err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fromStatus(err)
	}

	ch := make(chan bus.Message, bus.SubscriberBuffer)
	go func() {
		defer close(ch)
		defer cancel()
		for {
			var msg bus.Message
			err := stream.RecvMsg(&msg)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warnf("broker subscription ended: %v", err)
				return
			}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close ends every subscription. The connection belongs to the caller.
func (b *BrokerBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	return nil
}

func (b *BrokerBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
