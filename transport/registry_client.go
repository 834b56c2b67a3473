package transport

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/adamgarcia4/goLearning/fleet/registry"
)

// DefaultCallTimeout bounds a registry call whose context has no deadline.
const DefaultCallTimeout = 5 * time.Second

// Dial opens a client connection that speaks the fleet codec.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}

// RegistryClient calls a remote registry. It satisfies the robot runtime's
// registry dependency.
type RegistryClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

func NewRegistryClient(conn grpc.ClientConnInterface) *RegistryClient {
	return &RegistryClient{conn: conn, timeout: DefaultCallTimeout}
}

func (c *RegistryClient) invoke(ctx context.Context, method string, in, out any) error {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	err := c.conn.Invoke(ctx, "/"+registryServiceName+"/"+method, in, out)
	if err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *RegistryClient) Register(ctx context.Context, name string) (registry.Node, error) {
	var out registry.Node
	err := c.invoke(ctx, "Register", &RegisterRequest{Name: name}, &out)
	return out, err
}

func (c *RegistryClient) Unregister(ctx context.Context, id int64) (bool, error) {
	var out SuccessReply
	err := c.invoke(ctx, "Unregister", &RobotRequest{ID: id}, &out)
	return out.Success, err
}

func (c *RegistryClient) CheckPresence(ctx context.Context, id int64) (bool, error) {
	var out SuccessReply
	err := c.invoke(ctx, "CheckPresence", &RobotRequest{ID: id}, &out)
	return out.Success, err
}

func (c *RegistryClient) Poll(ctx context.Context, id int64) (registry.PollResult, error) {
	var out registry.PollResult
	err := c.invoke(ctx, "Poll", &RobotRequest{ID: id}, &out)
	return out, err
}

func (c *RegistryClient) ReportCaptain(ctx context.Context, claim registry.CaptainClaim) (bool, error) {
	var out SuccessReply
	err := c.invoke(ctx, "ReportCaptain", &claim, &out)
	return out.Success, err
}

func (c *RegistryClient) GetCaptain(ctx context.Context) (registry.Node, bool, error) {
	var out CaptainReply
	err := c.invoke(ctx, "GetCaptain", &Empty{}, &out)
	return out.Captain, out.Present, err
}

// RequestElection fails with an error matching registry.ErrEmptyFleet when
// no robot is registered.
func (c *RegistryClient) RequestElection(ctx context.Context) (uint64, error) {
	var out ElectionReply
	err := c.invoke(ctx, "RequestElection", &Empty{}, &out)
	return out.Epoch, err
}

// StreamAll yields every registered robot as the server streams them. A
// transport failure is yielded once as the final element.
func (c *RegistryClient) StreamAll(ctx context.Context) iter.Seq2[registry.Node, error] {
	return func(yield func(registry.Node, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := c.conn.NewStream(ctx, &registryServiceDesc.Streams[0], "/"+registryServiceName+"/StreamAll")
		if err != nil {
			yield(registry.Node{}, fromStatus(err))
			return
		}
		if err := stream.SendMsg(&Empty{}); err != nil {
			yield(registry.Node{}, fromStatus(err))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(registry.Node{}, fromStatus(err))
			return
		}

		for {
			var n registry.Node
			err := stream.RecvMsg(&n)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(registry.Node{}, fromStatus(err))
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}
