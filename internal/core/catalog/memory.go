package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

type key struct {
	project   string
	tableName string
}

// MemoryStore is an in-memory implementation of Store.
// Useful for testing and development.
type MemoryStore struct {
	mu         sync.RWMutex
	aggregates map[key]*ContinuousAggregate
}

// NewMemoryStore creates a new in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aggregates: make(map[key]*ContinuousAggregate),
	}
}

func (s *MemoryStore) Create(ctx context.Context, project string, aggregate ContinuousAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{project: project, tableName: aggregate.TableName}
	if _, exists := s.aggregates[k]; exists {
		return ErrAlreadyExists
	}

	if aggregate.CreatedAt.IsZero() {
		aggregate.CreatedAt = time.Now().UTC()
	}

	// Store a copy to prevent external modification
	aggregate.Options = cloneOptions(aggregate.Options)
	s.aggregates[k] = &aggregate
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, project, tableName string) (*ContinuousAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.aggregates[key{project: project, tableName: tableName}]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modification
	copy := *a
	copy.Options = cloneOptions(a.Options)
	return &copy, nil
}

func (s *MemoryStore) List(ctx context.Context, project string) ([]ContinuousAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ContinuousAggregate
	for k, a := range s.aggregates {
		if k.project != project {
			continue
		}
		copy := *a
		copy.Options = cloneOptions(a.Options)
		result = append(result, copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TableName < result[j].TableName
	})
	return result, nil
}

func (s *MemoryStore) Delete(ctx context.Context, project, tableName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{project: project, tableName: tableName}
	if _, exists := s.aggregates[k]; !exists {
		return ErrNotFound
	}

	delete(s.aggregates, k)
	return nil
}
