package storage

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Fixed keys under which the session is persisted.
const (
	KeyAuthToken = "auth_token"
	KeyUserInfo  = "user_info"
)

// SessionStorage is a durable key-value store backed by a JSON file.
type SessionStorage struct {
	mu     sync.RWMutex
	path   string
	values map[string]json.RawMessage
}

// NewSessionStorage opens the store and loads existing values if present.
func NewSessionStorage(path string) (*SessionStorage, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	s := &SessionStorage{path: path, values: make(map[string]json.RawMessage)}
	if err := readJSON(path, &s.values); err != nil {
		return nil, err
	}
	if s.values == nil {
		s.values = make(map[string]json.RawMessage)
	}
	return s, nil
}

// Get decodes the value stored under key into dest.
func (s *SessionStorage) Get(key string, dest any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key and persists the store.
func (s *SessionStorage) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return writeJSONAtomic(s.path, s.values, 0o600)
}

// Delete removes keys and persists the store.
func (s *SessionStorage) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.values, key)
	}
	return writeJSONAtomic(s.path, s.values, 0o600)
}
