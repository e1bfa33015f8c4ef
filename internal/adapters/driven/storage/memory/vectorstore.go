package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/similarity"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore is an in-memory brute-force implementation of driven.VectorStore.
type VectorStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]driven.VectorRecord
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		collections: make(map[string]map[string]driven.VectorRecord),
	}
}

// Upsert writes or replaces records in a collection.
func (s *VectorStore) Upsert(_ context.Context, collection string, records []driven.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]driven.VectorRecord)
		s.collections[collection] = coll
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		coll[r.ID] = r
	}
	return nil
}

// Query scores every record in the collection and returns the top k.
func (s *VectorStore) Query(
	_ context.Context, collection string, vector []float32, filter driven.VectorFilter, k int,
) ([]driven.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[string]bool, len(filter.FileIDs))
	for _, id := range filter.FileIDs {
		allowed[id] = true
	}

	coll := s.collections[collection]
	records := make([]driven.VectorRecord, 0, len(coll))
	scores := make([]similarity.Scored, 0, len(coll))
	for _, r := range coll {
		if len(allowed) > 0 && !allowed[r.FileID] {
			continue
		}
		scores = append(scores, similarity.Scored{Index: len(records), Score: similarity.Cosine(vector, r.Vector)})
		records = append(records, r)
	}

	top := similarity.TopK(scores, k)
	hits := make([]driven.VectorHit, len(top))
	for i, sc := range top {
		r := records[sc.Index]
		hits[i] = driven.VectorHit{ID: r.ID, FileID: r.FileID, TaskID: r.TaskID, Score: sc.Score}
	}
	return hits, nil
}

// Delete removes records by id.
func (s *VectorStore) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[collection]
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}

// Reset removes every record in scope across all collections.
func (s *VectorStore) Reset(_ context.Context, scope driven.ResetScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope.All() {
		s.collections = make(map[string]map[string]driven.VectorRecord)
		return nil
	}
	for _, coll := range s.collections {
		for id, r := range coll {
			if r.FileID == scope.FileID {
				delete(coll, id)
			}
		}
	}
	return nil
}

// Count returns the number of records in a collection.
func (s *VectorStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Close releases resources (no-op for memory store).
func (s *VectorStore) Close() error {
	return nil
}
