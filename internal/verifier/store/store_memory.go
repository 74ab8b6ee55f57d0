// Package store persists verification results.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"certverify/internal/verifier/models"
	"certverify/pkg/platform/sentinel"
)

// InMemoryStore keeps results in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[uuid.UUID]*models.Result
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[uuid.UUID]*models.Result)}
}

func (s *InMemoryStore) Save(_ context.Context, result *models.Result) error {
	if result == nil || result.ID == uuid.Nil {
		return fmt.Errorf("result id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	cp.Steps = append([]models.StepStatus(nil), result.Steps...)
	s.results[result.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListByDocument returns the results for documentID, newest first.
func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string, limit int) ([]*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Result
	for _, r := range s.results {
		if r.DocumentID == documentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
