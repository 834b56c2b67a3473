package robot

import "errors"

var (
	ErrNameRequired             = errors.New("robot name is required")
	ErrInvalidHeartbeatInterval = errors.New("heartbeat interval must be positive")
	ErrInvalidHeartbeatTimeout  = errors.New("heartbeat timeout must exceed the heartbeat interval")
	ErrInvalidDecisionWindow    = errors.New("decision window must be positive")
	ErrInvalidPollInterval      = errors.New("poll interval must be positive")

	ErrAlreadyStarted = errors.New("robot already started")
	ErrNotStarted     = errors.New("robot not started")
)
