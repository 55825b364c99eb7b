package auth

import (
	"fmt"
	"sync"

	"kbdash/internal/models"
	"kbdash/internal/storage"
)

// Store is the durable key-value storage behind a session.
type Store interface {
	Get(key string, dest any) (bool, error)
	Set(key string, value any) error
	Delete(keys ...string) error
}

// Sessions holds the current session and mirrors it to durable storage
// under the fixed keys auth_token and user_info.
type Sessions struct {
	store Store

	mu      sync.RWMutex
	current *models.Session
}

// NewSessions creates an empty session holder; call Gateway.Restore to
// revive a persisted one.
func NewSessions(store Store) *Sessions {
	return &Sessions{store: store}
}

// Token returns the current bearer token or "".
func (s *Sessions) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Current returns the active session, if any.
func (s *Sessions) Current() (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Session{}, false
	}
	return *s.current, true
}

// Load adopts the persisted session without asking the backend. Short-lived
// commands use it; the long-running dashboard validates via Gateway.Restore.
func (s *Sessions) Load() (bool, error) {
	token, user, ok, err := s.stored()
	if err != nil || !ok {
		return false, err
	}
	s.mu.Lock()
	s.current = &models.Session{Token: token, User: user}
	s.mu.Unlock()
	return true, nil
}

// set persists session and only then installs it. A failed write leaves
// no session at all, in memory or on disk.
func (s *Sessions) set(session models.Session) error {
	if err := s.persist(session); err != nil {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		_ = s.store.Delete(storage.KeyAuthToken, storage.KeyUserInfo)
		return err
	}
	s.mu.Lock()
	s.current = &session
	s.mu.Unlock()
	return nil
}

func (s *Sessions) persist(session models.Session) error {
	if err := s.store.Set(storage.KeyAuthToken, session.Token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if err := s.store.Set(storage.KeyUserInfo, session.User); err != nil {
		return fmt.Errorf("persist user info: %w", err)
	}
	return nil
}

// clear drops the in-memory session before touching storage so no
// request can pick up the old token afterwards.
func (s *Sessions) clear() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.store.Delete(storage.KeyAuthToken, storage.KeyUserInfo); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Sessions) stored() (string, models.User, bool, error) {
	var (
		token string
		user  models.User
	)
	okToken, err := s.store.Get(storage.KeyAuthToken, &token)
	if err != nil {
		return "", models.User{}, false, err
	}
	okUser, err := s.store.Get(storage.KeyUserInfo, &user)
	if err != nil {
		return "", models.User{}, false, err
	}
	return token, user, okToken && okUser && token != "", nil
}
