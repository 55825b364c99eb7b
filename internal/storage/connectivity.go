package storage

import (
	"sync"

	"kbdash/internal/models"
)

// ProbeHistoryStorage persists liveness probe results to disk.
type ProbeHistoryStorage struct {
	mu      sync.RWMutex
	path    string
	history []models.ProbeResult
}

// NewProbeHistoryStorage initialises storage and loads existing samples if present.
func NewProbeHistoryStorage(path string) (*ProbeHistoryStorage, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	store := &ProbeHistoryStorage{path: path}
	if err := readJSON(path, &store.history); err != nil {
		return nil, err
	}
	return store, nil
}

// History returns a copy of the persisted probe results.
func (s *ProbeHistoryStorage) History() []models.ProbeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return nil
	}
	out := make([]models.ProbeResult, len(s.history))
	copy(out, s.history)
	return out
}

// Replace overwrites the stored history with the provided entries.
func (s *ProbeHistoryStorage) Replace(entries []models.ProbeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = make([]models.ProbeResult, len(entries))
	copy(s.history, entries)
	return writeJSONAtomic(s.path, s.history, 0o644)
}
