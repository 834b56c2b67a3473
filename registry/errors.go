package registry

import "errors"

var (
	// ErrEmptyFleet rejects an election request while no robot is registered.
	ErrEmptyFleet = errors.New("no members available")
	// ErrImplausibleClaim rejects a captain report that fails verification.
	ErrImplausibleClaim = errors.New("implausible captain claim")
)
