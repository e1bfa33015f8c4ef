package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure PersonStore implements the interface.
var _ driven.PersonStore = (*PersonStore)(nil)

// PersonStore is an in-memory implementation of driven.PersonStore.
type PersonStore struct {
	mu      sync.RWMutex
	persons map[string]domain.PersonIdentity
}

// NewPersonStore creates a new in-memory person store.
func NewPersonStore() *PersonStore {
	return &PersonStore{persons: make(map[string]domain.PersonIdentity)}
}

// SavePerson stores or updates a person.
func (s *PersonStore) SavePerson(_ context.Context, person *domain.PersonIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[person.ID] = *person
	return nil
}

// GetPerson retrieves a person by ID.
func (s *PersonStore) GetPerson(_ context.Context, id string) (*domain.PersonIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// ListPersons returns all registered people ordered by name.
func (s *PersonStore) ListPersons(_ context.Context) ([]domain.PersonIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PersonIdentity, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeletePerson removes a person.
func (s *PersonStore) DeletePerson(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.persons, id)
	return nil
}
