// Package postgres implements repository.DocumentRepository on PostgreSQL.
// Status transitions are enforced in SQL with status-guarded UPDATEs so two
// concurrent workers cannot move the same document twice.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medindex/internal/model"
	"medindex/internal/repository"
)

const documentColumns = `id, filename, storage_path, size, content_type, status, uploaded_at,
		processed_at, extracted_text, ocr_confidence, entity_count, entities, metadata, failure_reason`

type DocumentPostgres struct {
	db *sql.DB
}

func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, filename, storage_path, size, content_type, status, uploaded_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + documentColumns
	meta, err := marshalJSON(doc.Metadata)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Filename,
		doc.StoragePath,
		doc.Size,
		doc.ContentType,
		doc.Status,
		doc.UploadedAt,
		meta,
	)
	return scanDocument(row)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return doc, err
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// Delete removes a document by ID. A missing row reports ErrNotFound.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkProcessing moves an uploaded document to processing.
func (r *DocumentPostgres) MarkProcessing(ctx context.Context, id string) (*model.Document, error) {
	const q = `
		UPDATE documents SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING ` + documentColumns
	doc, err := scanDocument(r.db.QueryRowContext(ctx, q, id, model.StatusProcessing, model.StatusUploaded))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.transitionError(ctx, id)
	}
	return doc, err
}

// Complete moves a processing document to completed with its results.
func (r *DocumentPostgres) Complete(ctx context.Context, id string, res repository.Completion) (*model.Document, error) {
	const q = `
		UPDATE documents
		SET status = $2, extracted_text = $3, ocr_confidence = $4,
		    entities = $5, entity_count = $6, processed_at = $7
		WHERE id = $1 AND status = $8
		RETURNING ` + documentColumns
	ents, err := marshalJSON(res.Entities)
	if err != nil {
		return nil, err
	}
	at := res.ProcessedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	doc, err := scanDocument(r.db.QueryRowContext(ctx, q,
		id, model.StatusCompleted, res.Text, res.Confidence,
		ents, len(res.Entities), at, model.StatusProcessing,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.transitionError(ctx, id)
	}
	return doc, err
}

// Fail moves a processing document to failed, keeping any partial results.
func (r *DocumentPostgres) Fail(ctx context.Context, id, reason string, partial *repository.Completion) (*model.Document, error) {
	const q = `
		UPDATE documents
		SET status = $2, failure_reason = $3, extracted_text = $4,
		    ocr_confidence = $5, entities = $6, entity_count = $7, processed_at = $8
		WHERE id = $1 AND status = $9
		RETURNING ` + documentColumns

	var (
		text  string
		conf  float64
		ents  []byte
		count int
	)
	at := time.Now().UTC()
	if partial != nil {
		text = partial.Text
		conf = partial.Confidence
		count = len(partial.Entities)
		var err error
		if ents, err = marshalJSON(partial.Entities); err != nil {
			return nil, err
		}
		if !partial.ProcessedAt.IsZero() {
			at = partial.ProcessedAt
		}
	}

	doc, err := scanDocument(r.db.QueryRowContext(ctx, q,
		id, model.StatusFailed, reason, text, conf, ents, count, at, model.StatusProcessing,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.transitionError(ctx, id)
	}
	return doc, err
}

// Stats aggregates counts over the whole table.
func (r *DocumentPostgres) Stats(ctx context.Context, recentWindow time.Duration) (*model.Stats, error) {
	s := &model.Stats{
		StatusCounts: make(map[model.DocumentStatus]int),
		EntityLabels: make(map[model.EntityLabel]int),
	}

	const qStatus = `SELECT status, COUNT(*) FROM documents GROUP BY status`
	rows, err := r.db.QueryContext(ctx, qStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status model.DocumentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		s.StatusCounts[status] = n
		s.TotalDocuments += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qTotals = `SELECT COALESCE(SUM(entity_count), 0), COUNT(*) FILTER (WHERE uploaded_at > $1) FROM documents`
	if err := r.db.QueryRowContext(ctx, qTotals, time.Now().UTC().Add(-recentWindow)).
		Scan(&s.TotalEntities, &s.RecentUploads); err != nil {
		return nil, err
	}

	const qLabels = `
		SELECT e->>'label', COUNT(*)
		FROM documents
		CROSS JOIN LATERAL jsonb_array_elements(entities) AS e
		GROUP BY 1
	`
	labelRows, err := r.db.QueryContext(ctx, qLabels)
	if err != nil {
		return nil, err
	}
	defer labelRows.Close()
	for labelRows.Next() {
		var label string
		var n int
		if err := labelRows.Scan(&label, &n); err != nil {
			return nil, err
		}
		s.EntityLabels[model.ParseEntityLabel(label)] = n
	}
	if err := labelRows.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

// transitionError distinguishes a missing row from a row whose current status
// forbids the requested transition.
func (r *DocumentPostgres) transitionError(ctx context.Context, id string) error {
	const q = `SELECT status FROM documents WHERE id = $1`
	var status model.DocumentStatus
	err := r.db.QueryRowContext(ctx, q, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document is %s", repository.ErrIllegalTransition, status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d           model.Document
		processedAt sql.NullTime
		entities    []byte
		metadata    []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.Filename,
		&d.StoragePath,
		&d.Size,
		&d.ContentType,
		&d.Status,
		&d.UploadedAt,
		&processedAt,
		&d.ExtractedText,
		&d.OCRConfidence,
		&d.EntityCount,
		&entities,
		&metadata,
		&d.FailureReason,
	); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		at := processedAt.Time
		d.ProcessedAt = &at
	}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &d.Entities); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &d, nil
}

// marshalJSON encodes v for a jsonb column, mapping empty values to SQL NULL.
func marshalJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	case []model.Entity:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
