package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/adamgarcia4/goLearning/fleet/registry"
)

const registryServiceName = "fleet.v1.Registry"

// registryHandler is the server side of fleet.v1.Registry.
type registryHandler interface {
	Register(context.Context, *RegisterRequest) (*registry.Node, error)
	Unregister(context.Context, *RobotRequest) (*SuccessReply, error)
	CheckPresence(context.Context, *RobotRequest) (*SuccessReply, error)
	Poll(context.Context, *RobotRequest) (*registry.PollResult, error)
	ReportCaptain(context.Context, *registry.CaptainClaim) (*SuccessReply, error)
	GetCaptain(context.Context, *Empty) (*CaptainReply, error)
	RequestElection(context.Context, *Empty) (*ElectionReply, error)
	StreamAll(*Empty, grpc.ServerStream) error
}

// unary builds a MethodDesc the way protoc-gen-go-grpc lays out a handler.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := fmt.Sprintf("/%s/%s", service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func _Registry_StreamAll_Handler(srv any, stream grpc.ServerStream) error {
	in := new(Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(registryHandler).StreamAll(in, stream)
}

var registryServiceDesc = grpc.ServiceDesc{
	ServiceName: registryServiceName,
	HandlerType: (*registryHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary(registryServiceName, "Register", registryHandler.Register),
		unary(registryServiceName, "Unregister", registryHandler.Unregister),
		unary(registryServiceName, "CheckPresence", registryHandler.CheckPresence),
		unary(registryServiceName, "Poll", registryHandler.Poll),
		unary(registryServiceName, "ReportCaptain", registryHandler.ReportCaptain),
		unary(registryServiceName, "GetCaptain", registryHandler.GetCaptain),
		unary(registryServiceName, "RequestElection", registryHandler.RequestElection),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamAll",
			Handler:       _Registry_StreamAll_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "fleet/v1/registry",
}

// RegistryServer serves a registry.Registry over gRPC.
type RegistryServer struct {
	reg *registry.Registry
}

var _ registryHandler = (*RegistryServer)(nil)

func NewRegistryServer(reg *registry.Registry) *RegistryServer {
	return &RegistryServer{reg: reg}
}

func (s *RegistryServer) Register(_ context.Context, req *RegisterRequest) (*registry.Node, error) {
	n := s.reg.Register(req.Name)
	return &n, nil
}

func (s *RegistryServer) Unregister(_ context.Context, req *RobotRequest) (*SuccessReply, error) {
	return &SuccessReply{Success: s.reg.Unregister(req.ID)}, nil
}

func (s *RegistryServer) CheckPresence(_ context.Context, req *RobotRequest) (*SuccessReply, error) {
	return &SuccessReply{Success: s.reg.CheckPresence(req.ID)}, nil
}

func (s *RegistryServer) Poll(_ context.Context, req *RobotRequest) (*registry.PollResult, error) {
	res := s.reg.Poll(req.ID)
	return &res, nil
}

func (s *RegistryServer) ReportCaptain(ctx context.Context, claim *registry.CaptainClaim) (*SuccessReply, error) {
	ok, err := s.reg.ReportCaptain(ctx, *claim)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SuccessReply{Success: ok}, nil
}

func (s *RegistryServer) GetCaptain(context.Context, *Empty) (*CaptainReply, error) {
	n, ok := s.reg.GetCaptain()
	return &CaptainReply{Captain: n, Present: ok}, nil
}

func (s *RegistryServer) RequestElection(context.Context, *Empty) (*ElectionReply, error) {
	epoch, err := s.reg.RequestElection()
	if err != nil {
		return nil, toStatus(err)
	}
	return &ElectionReply{Epoch: epoch}, nil
}

func (s *RegistryServer) StreamAll(_ *Empty, stream grpc.ServerStream) error {
	for n := range s.reg.StreamAll(stream.Context()) {
		if err := stream.SendMsg(&n); err != nil {
			return err
		}
	}
	return stream.Context().Err()
}
