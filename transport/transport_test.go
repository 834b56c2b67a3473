package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/registry"
)

// startServer serves reg and a broker over an in-memory listener and returns
// a connected client conn.
func startServer(t *testing.T, reg *registry.Registry, mem *bus.MemoryBus) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	g, err := NewGRPC("bufnet:0")
	require.NoError(t, err)
	g.RegisterRegistry(NewRegistryServer(reg))
	g.RegisterBroker(NewBroker(mem))
	go g.Serve(lis)

	conn, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		mem.Close()
		g.Stop()
	})
	return conn
}

func TestNewGRPCRejectsBadAddress(t *testing.T) {
	_, err := NewGRPC("localhost")
	assert.Error(t, err)
	_, err = NewGRPC("")
	assert.Error(t, err)
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := registry.New(registry.DefaultOptions())
	client := NewRegistryClient(startServer(t, reg, bus.NewMemoryBus()))
	ctx := context.Background()

	a, err := client.Register(ctx, "alpha")
	require.NoError(t, err)
	b, err := client.Register(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, registry.Node{ID: 0, Name: "alpha"}, a)
	assert.Equal(t, int64(1), b.ID)

	present, err := client.CheckPresence(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, present)

	res, err := client.Poll(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, res.Connected)
	assert.False(t, res.ElectionRequested)

	epoch, err := client.RequestElection(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	res, err = client.Poll(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, res.ElectionRequested)
	assert.Equal(t, uint64(1), res.Epoch)

	ok, err := client.ReportCaptain(ctx, registry.CaptainClaim{ID: b.ID, Name: b.Name, Epoch: 1, Candidates: []int64{0, 1}})
	require.NoError(t, err)
	assert.True(t, ok)

	captain, has, err := client.GetCaptain(ctx)
	require.NoError(t, err)
	require.True(t, has)
	assert.Equal(t, b, captain)

	removed, err := client.Unregister(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, has, err = client.GetCaptain(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	// not found is an ordinary false, not an error
	removed, err = client.Unregister(ctx, 99)
	require.NoError(t, err)
	assert.False(t, removed)

	res, err = client.Poll(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, res.Connected)
}

func TestRequestElectionEmptyFleetOverWire(t *testing.T) {
	client := NewRegistryClient(startServer(t, registry.New(registry.DefaultOptions()), bus.NewMemoryBus()))

	_, err := client.RequestElection(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrEmptyFleet)
	assert.Equal(t, "no members available", err.Error())
}

func TestImplausibleClaimOverWire(t *testing.T) {
	reg := registry.New(registry.Options{VerifyClaims: true})
	client := NewRegistryClient(startServer(t, reg, bus.NewMemoryBus()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.Register(ctx, "r")
		require.NoError(t, err)
	}

	ok, err := client.ReportCaptain(ctx, registry.CaptainClaim{ID: 0, Candidates: []int64{0, 2}})
	assert.ErrorIs(t, err, registry.ErrImplausibleClaim)
	assert.False(t, ok)
}

func TestStreamAllOverWire(t *testing.T) {
	reg := registry.New(registry.DefaultOptions())
	for _, name := range []string{"a", "b", "c"} {
		reg.Register(name)
	}
	client := NewRegistryClient(startServer(t, reg, bus.NewMemoryBus()))

	var names []string
	for n, err := range client.StreamAll(context.Background()) {
		require.NoError(t, err)
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	// stopping early is fine
	count := 0
	for _, err := range client.StreamAll(context.Background()) {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

// delivered publishes msg until it shows up on ch, which covers the window
// before the server has registered the subscription.
func delivered(t *testing.T, pub *BrokerBus, ch <-chan bus.Message, msg bus.Message) bool {
	t.Helper()
	return assert.Eventually(t, func() bool {
		if err := pub.Publish(context.Background(), msg); err != nil {
			return false
		}
		timeout := time.After(20 * time.Millisecond)
		for {
			select {
			case got := <-ch:
				if got.ID == msg.ID {
					return true
				}
			case <-timeout:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBrokerFanout(t *testing.T) {
	conn := startServer(t, registry.New(registry.DefaultOptions()), bus.NewMemoryBus())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := NewBrokerBus(conn)
	defer pub.Close()
	sub := NewBrokerBus(conn)
	defer sub.Close()

	all, err := sub.Subscribe(ctx)
	require.NoError(t, err)
	heartbeats, err := sub.Subscribe(ctx, bus.TopicStatus)
	require.NoError(t, err)

	assert.True(t, delivered(t, pub, all, bus.NewMessage(bus.TopicElectionCandidate, 3)))
	assert.True(t, delivered(t, pub, heartbeats, bus.NewMessage(bus.TopicStatus, 3)))

	// the heartbeat-only subscription never sees candidacies
	require.NoError(t, pub.Publish(ctx, bus.NewMessage(bus.TopicElectionCandidate, 4)))
	timeout := time.After(50 * time.Millisecond)
drain:
	for {
		select {
		case got := <-heartbeats:
			assert.Equal(t, bus.TopicStatus, got.Topic)
		case <-timeout:
			break drain
		}
	}

	got := <-all
	for got.Topic != bus.TopicElectionCandidate || got.NodeID != 4 {
		got = <-all
	}
	assert.Equal(t, int64(4), got.NodeID)
}

func TestBrokerBusClosed(t *testing.T) {
	conn := startServer(t, registry.New(registry.DefaultOptions()), bus.NewMemoryBus())
	b := NewBrokerBus(conn)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), bus.NewMessage(bus.TopicStatus, 1)), bus.ErrClosed)
	_, err := b.Subscribe(context.Background())
	assert.ErrorIs(t, err, bus.ErrClosed)
}
