package peersync

import (
	"context"
	"sync"
	"time"
)

// Manager owns the single active PeerSync. Starting a role tears down the
// previous one first.
type Manager struct {
	Transport Transport
	Data      Snapshots
	Timeout   time.Duration

	// roleMu serializes role changes; mu guards current.
	roleMu  sync.Mutex
	mu      sync.Mutex
	current *PeerSync
}

func NewManager(t Transport, data Snapshots) *Manager {
	return &Manager{Transport: t, Data: data, Timeout: DefaultTimeout}
}

// StartSender replaces any running transfer with a new sender.
func (m *Manager) StartSender(ctx context.Context) (Status, error) {
	m.roleMu.Lock()
	defer m.roleMu.Unlock()

	ps := m.replace()
	if _, err := ps.StartSender(ctx); err != nil {
		return ps.Status(), err
	}
	return ps.Status(), nil
}

// ConnectToSender replaces any running transfer with a receiver for code.
func (m *Manager) ConnectToSender(ctx context.Context, code string) (Status, error) {
	m.roleMu.Lock()
	defer m.roleMu.Unlock()

	if _, ok := NormalizeCode(code); !ok {
		return m.Status(), ErrInvalidCode
	}
	ps := m.replace()
	if err := ps.ConnectToSender(ctx, code); err != nil {
		return ps.Status(), err
	}
	return ps.Status(), nil
}

// Status reports the active transfer, or idle when there is none.
func (m *Manager) Status() Status {
	m.mu.Lock()
	ps := m.current
	m.mu.Unlock()
	if ps == nil {
		return Status{Status: StatusIdle}
	}
	return ps.Status()
}

// Close tears down the active transfer, if any.
func (m *Manager) Close() error {
	m.roleMu.Lock()
	defer m.roleMu.Unlock()

	m.mu.Lock()
	ps := m.current
	m.current = nil
	m.mu.Unlock()
	if ps == nil {
		return nil
	}
	return ps.Close()
}

func (m *Manager) replace() *PeerSync {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	ps := New(m.Transport, m.Data, nil)
	if m.Timeout > 0 {
		ps.SetTimeout(m.Timeout)
	}
	m.mu.Lock()
	m.current = ps
	m.mu.Unlock()
	return ps
}
