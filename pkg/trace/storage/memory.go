package storage

import (
	"context"
	"sync"

	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// MemoryStorage keeps decisions in an in-memory slice. Intended for tests
// and ephemeral deployments; nothing survives a restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []*trace.Decision
	byKey   map[string]*trace.Decision
}

// NewMemoryStorage creates an empty in-memory trace backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byKey: make(map[string]*trace.Decision),
	}
}

// Append persists a decision record in memory.
func (s *MemoryStorage) Append(ctx context.Context, d *trace.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := *d
	s.entries = append(s.entries, &entry)
	if entry.IdempotencyKey != "" {
		s.byKey[entry.IdempotencyKey] = &entry
	}
	return nil
}

// List returns decisions in append order, optionally filtered by session id.
func (s *MemoryStorage) List(ctx context.Context, sessionID string) ([]*trace.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*trace.Decision, 0, len(s.entries))
	for _, entry := range s.entries {
		if sessionID != "" && entry.SessionID != sessionID {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

// Count returns the number of stored decisions.
func (s *MemoryStorage) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Last returns the most recently appended decision, or nil when empty.
func (s *MemoryStorage) Last(ctx context.Context) (*trace.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	cp := *s.entries[len(s.entries)-1]
	return &cp, nil
}

// FindByIdempotencyKey returns the decision stored under the given key, or
// nil when none exists.
func (s *MemoryStorage) FindByIdempotencyKey(ctx context.Context, key string) (*trace.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

// Tamper overwrites a stored entry in place. Only for integrity tests.
func (s *MemoryStorage) Tamper(index int, mutate func(*trace.Decision)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < len(s.entries) {
		mutate(s.entries[index])
	}
}

// Close releases nothing; it exists to satisfy trace.Storage.
func (s *MemoryStorage) Close() error {
	return nil
}
