package robot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/registry"
)

var errRegistryDown = errors.New("registry down")

type failingRegistry struct{}

func (failingRegistry) Register(context.Context, string) (registry.Node, error) {
	return registry.Node{}, errRegistryDown
}

func (failingRegistry) Unregister(context.Context, int64) (bool, error) {
	return false, errRegistryDown
}

func (failingRegistry) Poll(context.Context, int64) (registry.PollResult, error) {
	return registry.PollResult{}, errRegistryDown
}

func (failingRegistry) ReportCaptain(context.Context, registry.CaptainClaim) (bool, error) {
	return false, errRegistryDown
}

func TestManagerCreateDelete(t *testing.T) {
	reg := registry.New(registry.DefaultOptions())
	b := bus.NewMemoryBus()
	defer b.Close()

	m := NewManager(registry.NewLocalClient(reg), b, fastConfig("bot"))

	first, err := m.CreateRobot(context.Background())
	require.NoError(t, err)
	second, err := m.CreateRobot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "bot-1", first.Name())
	assert.Equal(t, "bot-2", second.Name())
	assert.Equal(t, []*Robot{first, second}, m.GetRobots())
	assert.Equal(t, 2, reg.Count())

	assert.Error(t, m.DeleteRobot(5))
	require.NoError(t, m.DeleteRobot(0))
	assert.Equal(t, []*Robot{second}, m.GetRobots())
	require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, reg.CheckPresence(first.ID()))

	require.NoError(t, m.StopAll())
	assert.Empty(t, m.GetRobots())
	assert.Equal(t, 0, reg.Count())
}

func TestManagerCreateFailure(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	m := NewManager(failingRegistry{}, b, nil)
	_, err := m.CreateRobot(context.Background())
	assert.ErrorIs(t, err, errRegistryDown)
	assert.Empty(t, m.GetRobots())
}
