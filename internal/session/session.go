// Package session manages per-user conversation sessions.
//
// It layers get-or-create and atomic update semantics over a store.Store, and
// serializes turns per user so that at most one turn mutates a session at a
// time.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BeatBard/ccs-pops/internal/models"
	"github.com/BeatBard/ccs-pops/internal/store"
)

// Manager provides session lifecycle operations backed by a store.
type Manager struct {
	store store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a session manager backed by the given store.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st, locks: make(map[string]*sync.Mutex)}
}

// userLock returns the mutex serializing turns for one phone number.
func (m *Manager) userLock(phone string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[phone]
	if !ok {
		l = &sync.Mutex{}
		m.locks[phone] = l
	}
	return l
}

// LockUser acquires the per-user turn lock and returns the unlock function.
func (m *Manager) LockUser(phone string) func() {
	l := m.userLock(phone)
	l.Lock()
	return l.Unlock
}

// GetOrCreate returns the session for phone, creating an idle session if none
// exists. New sessions target today's date.
func (m *Manager) GetOrCreate(phone string) (*models.Session, error) {
	sess, err := m.store.GetSession(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess != nil {
		sess.Canonicalize()
		return sess, nil
	}

	now := time.Now()
	sess = &models.Session{
		ID:           uuid.NewString(),
		Phone:        phone,
		CurrentState: models.StateIdle,
		TargetDate:   now.Format("2006-01-02"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.SaveSession(*sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("Session created", "phone", phone, "sessionID", sess.ID)
	return sess, nil
}

// Get returns the session for phone, or models.ErrSessionNotFound.
func (m *Manager) Get(phone string) (*models.Session, error) {
	sess, err := m.store.GetSession(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, models.ErrSessionNotFound
	}
	sess.Canonicalize()
	return sess, nil
}

// Save persists the session, stamping UpdatedAt.
func (m *Manager) Save(sess *models.Session) error {
	sess.UpdatedAt = time.Now()
	if err := m.store.SaveSession(*sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Reset deletes the session for phone. The next turn starts from idle.
func (m *Manager) Reset(phone string) error {
	if err := m.store.DeleteSession(phone); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	slog.Info("Session reset", "phone", phone)
	return nil
}

// List returns all sessions, canonicalized.
func (m *Manager) List() ([]models.Session, error) {
	sessions, err := m.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for i := range sessions {
		sessions[i].Canonicalize()
	}
	return sessions, nil
}

// Count returns the number of active sessions.
func (m *Manager) Count() (int, error) {
	sessions, err := m.store.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return len(sessions), nil
}
