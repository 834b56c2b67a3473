package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsIncreasingIDs(t *testing.T) {
	reg := New(DefaultOptions())

	var last int64 = -1
	seen := map[int64]bool{}
	for i := 0; i < 50; i++ {
		n := reg.Register("robot")
		assert.Greater(t, n.ID, last)
		assert.False(t, seen[n.ID], "id %d issued twice", n.ID)
		seen[n.ID] = true
		last = n.ID
	}

	// ids are not reused after removal
	require.True(t, reg.Unregister(last))
	n := reg.Register("late")
	assert.Equal(t, last+1, n.ID)
}

func TestRegisterConcurrentIDsDistinct(t *testing.T) {
	reg := New(DefaultOptions())

	const workers = 64
	ids := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- reg.Register("r").ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, workers)
	assert.Equal(t, workers, reg.Count())
}

func TestUnregister(t *testing.T) {
	tests := []struct {
		name        string
		captain     int64
		remove      int64
		wantRemoved bool
		wantCaptain bool
	}{
		{name: "captain is cleared", captain: 1, remove: 1, wantRemoved: true, wantCaptain: false},
		{name: "non captain leaves captain", captain: 1, remove: 0, wantRemoved: true, wantCaptain: true},
		{name: "unknown id", captain: 1, remove: 42, wantRemoved: false, wantCaptain: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(DefaultOptions())
			reg.Register("a")
			reg.Register("b")
			ok, err := reg.ReportCaptain(context.Background(), CaptainClaim{ID: tt.captain, Name: "b"})
			require.NoError(t, err)
			require.True(t, ok)

			assert.Equal(t, tt.wantRemoved, reg.Unregister(tt.remove))

			captain, has := reg.GetCaptain()
			assert.Equal(t, tt.wantCaptain, has)
			if has {
				assert.Equal(t, tt.captain, captain.ID)
			}
		})
	}
}

func TestCheckPresence(t *testing.T) {
	reg := New(DefaultOptions())
	n := reg.Register("a")

	assert.True(t, reg.CheckPresence(n.ID))
	assert.False(t, reg.CheckPresence(n.ID+1))

	reg.Unregister(n.ID)
	assert.False(t, reg.CheckPresence(n.ID))
}

func TestPollUnknownIsDisconnected(t *testing.T) {
	reg := New(DefaultOptions())
	res := reg.Poll(3)
	assert.False(t, res.Connected)
	assert.False(t, res.ElectionRequested)
}

func TestRequestElectionEmptyFleet(t *testing.T) {
	for _, mode := range []TriggerMode{TriggerEpoch, TriggerConsumeOnce} {
		t.Run(mode.String(), func(t *testing.T) {
			reg := New(Options{TriggerMode: mode})

			_, err := reg.RequestElection()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEmptyFleet))
			assert.Equal(t, "no members available", err.Error())
			assert.Equal(t, uint64(0), reg.Epoch())

			// A robot joining afterwards must not see the rejected request.
			n := reg.Register("late")
			for i := 0; i < 3; i++ {
				res := reg.Poll(n.ID)
				assert.True(t, res.Connected)
				assert.False(t, res.ElectionRequested)
			}
		})
	}
}

func TestPollConsumeOnceSingleWinner(t *testing.T) {
	reg := New(Options{TriggerMode: TriggerConsumeOnce})

	const pollers = 32
	ids := make([]int64, pollers)
	for i := range ids {
		ids[i] = reg.Register("r").ID
	}
	_, err := reg.RequestElection()
	require.NoError(t, err)

	var requested atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if reg.Poll(id).ElectionRequested {
				requested.Add(1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), requested.Load())
}

func TestPollEpochDeliversToEveryMemberOnce(t *testing.T) {
	reg := New(DefaultOptions())

	const members = 8
	ids := make([]int64, members)
	for i := range ids {
		ids[i] = reg.Register("r").ID
	}
	epoch, err := reg.RequestElection()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	// Every member polls many times concurrently; each sees the request exactly once.
	counts := make([]atomic.Int32, members)
	var wg sync.WaitGroup
	for i, id := range ids {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(i int, id int64) {
				defer wg.Done()
				res := reg.Poll(id)
				assert.Equal(t, uint64(1), res.Epoch)
				if res.ElectionRequested {
					counts[i].Add(1)
				}
			}(i, id)
		}
	}
	wg.Wait()

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "member %d", ids[i])
	}

	// A second request opens a new epoch for everyone again.
	_, err = reg.RequestElection()
	require.NoError(t, err)
	assert.True(t, reg.Poll(ids[0]).ElectionRequested)
	assert.False(t, reg.Poll(ids[0]).ElectionRequested)
}

func TestRegisterAfterRequestStartsAtCurrentEpoch(t *testing.T) {
	reg := New(DefaultOptions())
	reg.Register("early")
	_, err := reg.RequestElection()
	require.NoError(t, err)

	late := reg.Register("late")
	assert.False(t, reg.Poll(late.ID).ElectionRequested)
}

func TestReportCaptainLenient(t *testing.T) {
	reports := NewMemoryReportLog(10)
	reg := New(Options{Reports: reports})
	reg.Register("a")
	reg.Register("b")

	ok, err := reg.ReportCaptain(context.Background(), CaptainClaim{ID: 0, Name: "a", Candidates: []int64{0, 1}})
	require.NoError(t, err)
	assert.True(t, ok, "implausible claims are accepted without verification")

	captain, has := reg.GetCaptain()
	require.True(t, has)
	assert.Equal(t, Node{ID: 0, Name: "a"}, captain)

	ok, err = reg.ReportCaptain(context.Background(), CaptainClaim{ID: 9, Name: "ghost"})
	require.NoError(t, err)
	assert.False(t, ok, "unregistered claimants are never recorded")
	captain, _ = reg.GetCaptain()
	assert.Equal(t, int64(0), captain.ID)

	recent, err := reports.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(9), recent[0].Claim.ID)
	assert.False(t, recent[0].Accepted)
	assert.True(t, recent[1].Accepted)
	assert.NotEmpty(t, recent[1].Reason)
}

func TestReportCaptainVerified(t *testing.T) {
	tests := []struct {
		name    string
		claim   CaptainClaim
		wantErr bool
	}{
		{name: "winner of its set", claim: CaptainClaim{ID: 2, Candidates: []int64{0, 1, 2}}},
		{name: "legacy claim without set", claim: CaptainClaim{ID: 1}},
		{name: "not the highest", claim: CaptainClaim{ID: 1, Candidates: []int64{0, 1, 2}}, wantErr: true},
		{name: "missing from own set", claim: CaptainClaim{ID: 2, Candidates: []int64{0, 1}}, wantErr: true},
		{name: "unregistered", claim: CaptainClaim{ID: 7, Candidates: []int64{7}}, wantErr: true},
		{name: "future epoch", claim: CaptainClaim{ID: 2, Epoch: 5, Candidates: []int64{2}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(Options{VerifyClaims: true})
			for i := 0; i < 3; i++ {
				reg.Register("r")
			}

			ok, err := reg.ReportCaptain(context.Background(), tt.claim)
			_, has := reg.GetCaptain()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrImplausibleClaim)
				assert.False(t, ok)
				assert.False(t, has)
				return
			}
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, has)
		})
	}
}

func TestStreamAll(t *testing.T) {
	reg := New(DefaultOptions())
	for _, name := range []string{"a", "b", "c"} {
		reg.Register(name)
	}

	var names []string
	for n := range reg.StreamAll(context.Background()) {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	// A fresh call re-reads the table.
	reg.Unregister(1)
	names = names[:0]
	for n := range reg.StreamAll(context.Background()) {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestStreamAllSeesConcurrentChanges(t *testing.T) {
	reg := New(DefaultOptions())
	reg.Register("a")
	reg.Register("b")
	reg.Register("c")

	var got []int64
	for n := range reg.StreamAll(context.Background()) {
		got = append(got, n.ID)
		if n.ID == 0 {
			reg.Unregister(1)
			reg.Register("d")
		}
	}
	assert.Equal(t, []int64{0, 2, 3}, got)
}

func TestStreamAllStopsOnCancel(t *testing.T) {
	reg := New(Options{StreamDelay: time.Hour})
	reg.Register("a")
	reg.Register("b")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() {
		count := 0
		for range reg.StreamAll(ctx) {
			count++
		}
		done <- count
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case count := <-done:
		assert.Equal(t, 1, count)
	case <-time.After(time.Second):
		t.Fatal("StreamAll did not stop after cancel")
	}
}

func TestElectionScenarioCaptainLifecycle(t *testing.T) {
	reg := New(Options{VerifyClaims: true})
	for _, name := range []string{"r0", "r1", "r2"} {
		reg.Register(name)
	}

	ok, err := reg.ReportCaptain(context.Background(), CaptainClaim{ID: 2, Name: "r2", Candidates: []int64{0, 1, 2}})
	require.NoError(t, err)
	require.True(t, ok)

	captain, has := reg.GetCaptain()
	require.True(t, has)
	assert.Equal(t, int64(2), captain.ID)

	require.True(t, reg.Unregister(2))
	_, has = reg.GetCaptain()
	assert.False(t, has)
}

func TestParseTriggerMode(t *testing.T) {
	m, err := ParseTriggerMode("once")
	require.NoError(t, err)
	assert.Equal(t, TriggerConsumeOnce, m)

	m, err = ParseTriggerMode("")
	require.NoError(t, err)
	assert.Equal(t, TriggerEpoch, m)

	_, err = ParseTriggerMode("sometimes")
	assert.Error(t, err)
}
