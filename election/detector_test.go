package election

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestDetectorNeverSeenHeartbeat(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDetector(1, &Belief{}, clock, DefaultHeartbeatTimeout)

	for elapsed := time.Duration(0); elapsed < DefaultHeartbeatTimeout; elapsed += DefaultHeartbeatInterval {
		assert.Equal(t, VerdictNone, d.Tick(), "at %s", elapsed)
		clock.Advance(DefaultHeartbeatInterval)
	}
	// exactly at the threshold is not yet a timeout
	assert.Equal(t, VerdictNone, d.Tick())

	clock.Advance(time.Millisecond)
	assert.Equal(t, VerdictTimeout, d.Tick())
	// the silence clock restarts after firing
	assert.Equal(t, VerdictNone, d.Tick())
}

func TestDetectorTimeoutAfterLastHeartbeat(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := &Belief{}
	d := NewDetector(1, b, clock, DefaultHeartbeatTimeout)

	clock.Advance(8 * time.Second)
	assert.False(t, d.ObserveHeartbeat(4))
	assert.True(t, b.HasHeartbeat)
	assert.Equal(t, clock.Now(), b.LastHeartbeat)
	assert.Equal(t, int64(4), b.Captain)

	clock.Advance(9 * time.Second)
	assert.Equal(t, VerdictNone, d.Tick(), "17s since join but only 9s since the heartbeat")

	clock.Advance(2 * time.Second)
	assert.Equal(t, VerdictTimeout, d.Tick())
}

func TestDetectorCaptainEmitsHeartbeats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := &Belief{IsCaptain: true}
	d := NewDetector(3, b, clock, DefaultHeartbeatTimeout)

	clock.Advance(time.Hour)
	assert.Equal(t, VerdictHeartbeat, d.Tick())
}

func TestDetectorCaptainHeartbeats(t *testing.T) {
	tests := []struct {
		name         string
		from         int64
		wantStepDown bool
	}{
		{name: "own heartbeat", from: 5},
		{name: "lower id", from: 2},
		{name: "higher id", from: 8, wantStepDown: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Belief{IsCaptain: true, Captain: 5, HasCaptain: true}
			d := NewDetector(5, b, clockwork.NewFakeClock(), DefaultHeartbeatTimeout)
			assert.Equal(t, tt.wantStepDown, d.ObserveHeartbeat(tt.from))
			assert.True(t, b.IsCaptain, "the detector reports; the engine steps down")
		})
	}
}

func TestDetectorReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDetector(1, &Belief{}, clock, DefaultHeartbeatTimeout)

	clock.Advance(9 * time.Second)
	d.Reset()
	clock.Advance(9 * time.Second)
	assert.Equal(t, VerdictNone, d.Tick())
	assert.Equal(t, 9*time.Second, d.Silence())
}
