package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

// steps builds the schema. The embedding dimension is only known at runtime
// (it depends on the configured embedding model), so the step list is a
// function of it.
func steps(embeddingDim int) []migrationStep {
	return []migrationStep{
		{
			Name: "create_extension_uuid_ossp",
			SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
		},
		{
			Name: "create_extension_vector",
			SQL:  `CREATE EXTENSION IF NOT EXISTS vector;`,
		},
		{
			Name: "create_table_documents",
			SQL: `CREATE TABLE IF NOT EXISTS documents (
  id             UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  filename       TEXT        NOT NULL,
  storage_path   TEXT        NOT NULL UNIQUE,
  size           BIGINT      NOT NULL CHECK (size >= 0),
  content_type   TEXT        NOT NULL,
  status         TEXT        NOT NULL DEFAULT 'uploaded',
  uploaded_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  processed_at   TIMESTAMPTZ,
  extracted_text TEXT        NOT NULL DEFAULT '',
  ocr_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
  entity_count   INT         NOT NULL DEFAULT 0,
  entities       JSONB,
  metadata       JSONB,
  failure_reason TEXT        NOT NULL DEFAULT ''
);`,
		},
		{
			Name: "create_index_documents_status",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);`,
		},
		{
			Name: "create_index_documents_uploaded_at",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents (uploaded_at);`,
		},
		{
			Name: "create_index_documents_entities",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_entities ON documents USING GIN (entities);`,
		},
		{
			Name: "create_table_document_embeddings",
			SQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_embeddings (
  doc_id    TEXT PRIMARY KEY,
  embedding vector(%d) NOT NULL,
  metadata  JSONB
);`, embeddingDim),
		},
		{
			Name: "create_index_document_embeddings_hnsw",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_document_embeddings_hnsw ON document_embeddings USING hnsw (embedding vector_cosine_ops);`,
		},
	}
}

// EnsureMigrated checks if the 'documents' table exists and runs the schema
// steps if it doesn't. Not a versioned migration system: the schema is
// created once and treated as immutable after that.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, embeddingDim int) error {
	if log == nil {
		log = zap.NewNop()
	}
	if embeddingDim <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", embeddingDim)
	}
	start := time.Now()

	var exists bool
	query := "SELECT to_regclass('public.documents') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("schema already exists, skipping migration",
			zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	log.Info("running schema migration", zap.Int("embedding_dim", embeddingDim))

	for _, step := range steps(embeddingDim) {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("migration step failed",
				zap.String("step", step.Name),
				zap.Error(err))
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Debug("migration step applied",
			zap.String("step", step.Name),
			zap.Duration("elapsed", time.Since(stepStart)))
	}

	log.Info("schema migration complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}
