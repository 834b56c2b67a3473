package transport

import (
	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/registry"
)

// Wire messages. registry.Node, registry.PollResult, registry.CaptainClaim and
// bus.Message travel as they are.

type Empty struct{}

type RegisterRequest struct {
	Name string `json:"name"`
}

type RobotRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

type SuccessReply struct {
	Success bool `json:"success"`
}

type CaptainReply struct {
	Captain registry.Node `json:"captain"`
	Present bool          `json:"present"`
}

type ElectionReply struct {
	Epoch uint64 `json:"epoch"`
}

type SubscribeRequest struct {
	Topics []bus.Topic `json:"topics"`
}
