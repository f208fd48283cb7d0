// Package vectorstore abstracts the embedding index used by semantic search.
// One vector is kept per document; upserting a document id replaces its
// previous vector.
package vectorstore

import "context"

// Match is a similarity hit returned by Query, ordered best-first.
// Score is cosine similarity in [-1, 1].
type Match struct {
	DocID string
	Score float64
}

// VectorStore indexes one embedding per document id.
type VectorStore interface {
	Upsert(ctx context.Context, docID string, vector []float32, payload map[string]string) error
	Query(ctx context.Context, vector []float32, limit int) ([]Match, error)
	// Delete removes a document's vector. Deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, docID string) error
}
