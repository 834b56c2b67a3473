package registry

import "context"

// LocalClient calls a Registry in the same process. It has the same method set
// as the gRPC client in package transport, so a robot can run against either.
type LocalClient struct {
	reg *Registry
}

// NewLocalClient wraps reg.
func NewLocalClient(reg *Registry) *LocalClient {
	return &LocalClient{reg: reg}
}

func (c *LocalClient) Register(_ context.Context, name string) (Node, error) {
	return c.reg.Register(name), nil
}

func (c *LocalClient) Unregister(_ context.Context, id int64) (bool, error) {
	return c.reg.Unregister(id), nil
}

func (c *LocalClient) Poll(_ context.Context, id int64) (PollResult, error) {
	return c.reg.Poll(id), nil
}

func (c *LocalClient) ReportCaptain(ctx context.Context, claim CaptainClaim) (bool, error) {
	return c.reg.ReportCaptain(ctx, claim)
}
