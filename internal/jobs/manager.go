package jobs

import (
	"errors"
	"sync"

	"media-batch-converter/internal/domain"
)

// ErrRunAlreadyActive is returned when starting a second conversion run
// while one is still in flight. Overlapping runs would share encoder
// subprocesses and output state, so they are rejected outright.
var ErrRunAlreadyActive = errors.New("conversion run already active")

// ErrNoActiveRun is returned when cancel is requested in idle state.
var ErrNoActiveRun = errors.New("no active conversion run")

// Manager gates the single allowed active conversion run.
type Manager struct {
	mu      sync.RWMutex
	current domain.Run
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Run{
			Status: domain.RunStatusIdle,
		},
	}
}

// Begin registers a new run, rejecting overlap with an active one.
func (m *Manager) Begin(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.RunStatusRunning {
		return ErrRunAlreadyActive
	}

	m.current = domain.Run{
		ID:     runID,
		Status: domain.RunStatusRunning,
	}
	return nil
}

// Finish marks the identified run as done. Finishing a stale run ID is
// a no-op so late goroutines cannot clobber a newer run.
func (m *Manager) Finish(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != runID {
		return
	}
	m.current.Status = domain.RunStatusDone
}

// Current returns a snapshot of the current run.
func (m *Manager) Current() domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsRunning reports whether a conversion run is in flight.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status == domain.RunStatusRunning
}
