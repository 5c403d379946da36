package store

import (
	"context"
	"sync"

	"atlasbridge-hq/atlasbridge/pkg/approval"
)

// MemoryStore keeps approval requests in memory. Intended for tests and
// single-process deployments without persistence requirements.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*approval.Request
}

// NewMemoryStore creates an empty in-memory approval store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*approval.Request),
	}
}

// Save persists a new request.
func (s *MemoryStore) Save(ctx context.Context, req *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *req
	if _, exists := s.byID[req.ID]; !exists {
		s.order = append(s.order, req.ID)
	}
	s.byID[req.ID] = &cp
	return nil
}

// Update persists a status transition.
func (s *MemoryStore) Update(ctx context.Context, req *approval.Request) error {
	return s.Save(ctx, req)
}

// Get returns the request with the given id, or nil when unknown.
func (s *MemoryStore) Get(ctx context.Context, id string) (*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

// List returns requests in creation order, optionally filtered by status.
func (s *MemoryStore) List(ctx context.Context, status approval.Status) ([]*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*approval.Request, 0, len(s.order))
	for _, id := range s.order {
		req := s.byID[id]
		if status != "" && req.Status != status {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
