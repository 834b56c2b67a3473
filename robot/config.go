package robot

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/adamgarcia4/goLearning/fleet/election"
)

// Default configuration constants
const (
	DefaultName              = "robot"
	DefaultHeartbeatInterval = election.DefaultHeartbeatInterval
	DefaultHeartbeatTimeout  = election.DefaultHeartbeatTimeout
	DefaultDecisionWindow    = election.DefaultWindow
	DefaultPollInterval      = 10 * time.Second
	DefaultCallTimeout       = 5 * time.Second
)

// Config holds the configuration for a robot
type Config struct {
	// Name is sent to the registry; it need not be unique.
	Name string

	// Election timing
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	DecisionWindow    time.Duration

	// Registry polling
	PollInterval time.Duration
	CallTimeout  time.Duration // per registry call and per publish

	// Clock drives every timer; nil means the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(name string) *Config {
	return &Config{
		Name:              name,
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		DecisionWindow:    DefaultDecisionWindow,
		PollInterval:      DefaultPollInterval,
		CallTimeout:       DefaultCallTimeout,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return ErrInvalidHeartbeatTimeout
	}
	if c.DecisionWindow <= 0 {
		return ErrInvalidDecisionWindow
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	return nil
}

func (c *Config) clock() clockwork.Clock {
	if c.Clock == nil {
		return clockwork.NewRealClock()
	}
	return c.Clock
}

func (c *Config) callTimeout() time.Duration {
	if c.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return c.CallTimeout
}
