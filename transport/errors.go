package transport

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/adamgarcia4/goLearning/fleet/registry"
)

// toStatus maps registry errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, registry.ErrEmptyFleet):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, registry.ErrImplausibleClaim):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// remoteError keeps the server's message while unwrapping to the local sentinel.
type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

// fromStatus turns a status error back into the registry sentinel it came from.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return &remoteError{msg: st.Message(), sentinel: registry.ErrEmptyFleet}
	case codes.PermissionDenied:
		return &remoteError{msg: st.Message(), sentinel: registry.ErrImplausibleClaim}
	default:
		return err
	}
}
