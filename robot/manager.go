package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adamgarcia4/goLearning/fleet/bus"
	"github.com/adamgarcia4/goLearning/fleet/logger"
)

// Manager runs many robots in one process against a shared registry and bus
type Manager struct {
	robots []*Robot // maintain order with slice
	mu     sync.RWMutex
	nextID int // monotonically increasing counter for robot names

	reg  Registry
	bus  bus.Bus
	base Config
}

// NewManager creates a robot manager. Every robot copies base, with its own name.
func NewManager(reg Registry, b bus.Bus, base *Config) *Manager {
	if base == nil {
		base = DefaultConfig(DefaultName)
	}
	return &Manager{
		robots: make([]*Robot, 0),
		nextID: 1, // start robot names at 1
		reg:    reg,
		bus:    b,
		base:   *base,
	}
}

// CreateRobot creates and starts a new robot
func (m *Manager) CreateRobot(ctx context.Context) (*Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	config := m.base
	config.Name = fmt.Sprintf("%s-%d", m.base.Name, m.nextID)
	m.nextID++ // increment counter for next robot

	r, err := New(&config, m.reg, m.bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create robot: %w", err)
	}

	if err := r.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start robot: %w", err)
	}

	m.robots = append(m.robots, r)
	return r, nil
}

// DeleteRobot stops and removes a robot by its index in the list
func (m *Manager) DeleteRobot(index int) error {
	m.mu.Lock()

	if index < 0 || index >= len(m.robots) {
		m.mu.Unlock()
		return fmt.Errorf("invalid robot index: %d", index)
	}

	r := m.robots[index]
	m.robots = append(m.robots[:index], m.robots[index+1:]...)

	m.mu.Unlock()

	// Stop robot asynchronously to avoid blocking
	go func() {
		if err := r.Stop(); err != nil {
			// Log error but don't return it since we've already removed from list
			logger.Errorf("Error stopping %s: %v", r.Name(), err)
		}
	}()

	return nil
}

// GetRobots returns a list of all robots (maintains order)
func (m *Manager) GetRobots() []*Robot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	robots := make([]*Robot, len(m.robots))
	copy(robots, m.robots)
	return robots
}

// StopAll stops all robots
func (m *Manager) StopAll() error {
	m.mu.Lock()
	robots := m.robots
	m.robots = nil
	m.mu.Unlock()

	var errs []error
	for _, r := range robots {
		if err := r.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}

	return errors.Join(errs...)
}
