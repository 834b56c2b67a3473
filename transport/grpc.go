package transport

import (
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/adamgarcia4/goLearning/fleet/logger"
)

// GracefulStopTimeout is how long Stop waits for open calls before cutting them.
const GracefulStopTimeout = 5 * time.Second

// GRPC hosts the fleet services on one listener.
type GRPC struct {
	addr string
	srv  *grpc.Server
	lis  net.Listener
	log  *logger.Scope
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)

	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	return lis, nil
}

// RegisterRegistry exposes s as fleet.v1.Registry.
func (g *GRPC) RegisterRegistry(s *RegistryServer) {
	g.srv.RegisterService(&registryServiceDesc, s)
}

// RegisterBroker exposes b as fleet.v1.Broker.
func (g *GRPC) RegisterBroker(b *Broker) {
	g.srv.RegisterService(&brokerServiceDesc, b)
}

// Start listens on the configured address and serves until Stop. It blocks.
func (g *GRPC) Start() error {
	if lis, err := g.setupTcp(); err != nil {
		return fmt.Errorf("failed to setup TCP: %w", err)
	} else {
		g.lis = lis
	}
	return g.Serve(g.lis)
}

// Serve serves on an existing listener. It blocks.
func (g *GRPC) Serve(lis net.Listener) error {
	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(g.srv)

	g.log.Printf("Listening on %s", lis.Addr())
	return g.srv.Serve(lis)
}

// Stop drains open calls, then force-closes whatever is still running
// (broker subscriptions never finish on their own).
func (g *GRPC) Stop() {
	done := make(chan struct{})
	go func() {
		g.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(GracefulStopTimeout):
		g.srv.Stop()
	}
	g.log.Printf("Stopped")
}

func NewGRPC(addr string) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}

	return &GRPC{
		addr: addr,
		srv:  grpc.NewServer(grpc.ForceServerCodec(Codec{})),
		log:  logger.Named("grpc"),
	}, nil
}
