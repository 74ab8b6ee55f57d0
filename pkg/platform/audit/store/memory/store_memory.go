package memory

import (
	"context"
	"sync"

	audit "certverify/pkg/platform/audit"
)

// DefaultCapacity is the number of events kept before the oldest are dropped.
const DefaultCapacity = 10000

type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.Event
	capacity int
}

type Option func(*InMemoryStore)

// WithCapacity bounds the retained events; n <= 0 keeps the default.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Emit(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if over := len(s.events) - s.capacity; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns at most limit events, most recent last.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.events)-limit, 0)
	return append([]audit.Event(nil), s.events[start:]...), nil
}
