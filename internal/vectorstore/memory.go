package vectorstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used in development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string][]Passage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string][]Passage)}
}

func (s *MemoryStore) Upsert(_ context.Context, namespace string, passages []Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Passage, len(passages))
	copy(copied, passages)
	s.namespaces[namespace] = copied
	return nil
}

func (s *MemoryStore) SimilaritySearch(_ context.Context, namespace string, vector []float32, k int) ([]Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.namespaces[namespace]
	results := make([]Passage, 0, len(stored))
	for _, p := range stored {
		p.Score = CosineSimilarity(vector, p.Vector)
		results = append(results, p)
	}
	return rankTopK(results, k), nil
}

func (s *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// Count reports how many passages a namespace holds.
func (s *MemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}
