package registry

import "time"

// Node is one registered fleet member. ID is assigned by the registry and never
// reused while the registry process lives; Name is client supplied and not unique.
type Node struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PollResult is the answer to a liveness poll.
type PollResult struct {
	Connected         bool   `json:"connected"`
	ElectionRequested bool   `json:"election_requested"`
	Epoch             uint64 `json:"epoch"` // latest election epoch issued by the registry
}

// CaptainClaim is what an election winner presents when reporting itself.
// Candidates is the set the winner observed during its decision window and
// Epoch the highest election epoch it had seen.
type CaptainClaim struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Epoch      uint64  `json:"epoch"`
	Candidates []int64 `json:"candidates,omitempty"`
}

// Report is one audit record of a captain claim and how the registry judged it.
type Report struct {
	Claim      CaptainClaim
	Accepted   bool
	Reason     string // empty for plausible claims
	ReportedAt time.Time
}
