// internal/session/manager.go
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Corphon/TranscriptEditor/internal/errors"
	"github.com/google/uuid"
)

// Manager tracks open sessions and expires idle ones.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	deps     Deps
	ttl      time.Duration
}

// NewManager creates a manager. ttl <= 0 disables idle expiry.
func NewManager(deps Deps, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		deps:     deps.withDefaults(),
		ttl:      ttl,
	}
}

// Create opens a new empty session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.deps)

	m.mutex.Lock()
	m.sessions[s.ID] = s
	m.mutex.Unlock()

	m.deps.Metrics.SessionOpened()
	m.deps.Logger.Info("Session opened", map[string]interface{}{"session": s.ID})
	return s
}

// Get returns an open session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	s, ok := m.sessions[id]
	m.mutex.RUnlock()

	if !ok {
		return nil, apperrors.NewNotFoundError("session not found", nil)
	}
	s.touch()
	return s, nil
}

// Close tears down and forgets a session.
func (m *Manager) Close(id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return apperrors.NewNotFoundError("session not found", nil)
	}
	m.deps.Metrics.SessionClosed()
	m.deps.Logger.Info("Session closed", map[string]interface{}{"session": id})
	return s.Close()
}

// CloseAll tears down every session, e.g. on shutdown.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range all {
		m.deps.Metrics.SessionClosed()
		if err := s.Close(); err != nil {
			m.deps.Logger.Warn("Session teardown failed", map[string]interface{}{"session": s.ID, "error": err})
		}
	}
}

// List returns snapshots of all sessions, oldest first.
func (m *Manager) List() []Snapshot {
	m.mutex.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mutex.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	snaps := make([]Snapshot, 0, len(list))
	for _, s := range list {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the ttl and returns how many.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.deps.Now().Add(-m.ttl)

	m.mutex.RLock()
	expired := make([]string, 0)
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mutex.RUnlock()

	closed := 0
	for _, id := range expired {
		if err := m.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		m.deps.Logger.Info("Expired idle sessions", map[string]interface{}{"count": closed})
	}
	return closed
}

// StartCleanup runs Sweep every interval until ctx is done.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}
