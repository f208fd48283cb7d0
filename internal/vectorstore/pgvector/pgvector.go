// Package pgvector implements vectorstore.VectorStore on PostgreSQL with the
// pgvector extension. Similarity is cosine: score = 1 - (embedding <=> query).
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"

	pgv "github.com/pgvector/pgvector-go"

	"medindex/internal/vectorstore"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ vectorstore.VectorStore = (*Store)(nil)

func (s *Store) Upsert(ctx context.Context, docID string, vector []float32, payload map[string]string) error {
	const q = `
		INSERT INTO document_embeddings (doc_id, embedding, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (doc_id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata
	`
	var meta []byte
	if len(payload) > 0 {
		var err error
		if meta, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, q, docID, pgv.NewVector(vector), meta)
	return err
}

func (s *Store) Query(ctx context.Context, vector []float32, limit int) ([]vectorstore.Match, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT doc_id, 1 - (embedding <=> $1) AS score
		FROM document_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, q, pgv.NewVector(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]vectorstore.Match, 0, limit)
	for rows.Next() {
		var m vectorstore.Match
		if err := rows.Scan(&m.DocID, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *Store) Delete(ctx context.Context, docID string) error {
	const q = `DELETE FROM document_embeddings WHERE doc_id = $1`
	_, err := s.db.ExecContext(ctx, q, docID)
	return err
}
