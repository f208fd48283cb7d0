// Package memory is a brute-force cosine similarity vector store for tests
// and small single-process deployments.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"medindex/internal/vectorstore"
)

type Store struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewStore() *Store {
	return &Store{vectors: make(map[string][]float32)}
}

var _ vectorstore.VectorStore = (*Store)(nil)

func (s *Store) Upsert(_ context.Context, docID string, vector []float32, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[docID] = append([]float32(nil), vector...)
	return nil
}

func (s *Store) Query(_ context.Context, vector []float32, limit int) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	matches := make([]vectorstore.Match, 0, len(s.vectors))
	for id, v := range s.vectors {
		matches = append(matches, vectorstore.Match{DocID: id, Score: cosine(vector, v)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DocID < matches[j].DocID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, docID)
	return nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
