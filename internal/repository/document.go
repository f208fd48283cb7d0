package repository

import (
	"context"
	"time"

	"medindex/internal/model"
)

// DocumentRepository defines persistence for document records and their
// lifecycle transitions. Status changes go through the dedicated transition
// methods so an implementation can enforce the state machine atomically;
// there is no general-purpose Update.
type DocumentRepository interface {
	// Create inserts a new document record in the uploaded state.
	// Returns the stored document.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns a page of documents ordered by upload time (newest first)
	// together with the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// Delete removes a document by ID. A missing row is ErrNotFound, so a
	// repeated delete of the same ID fails.
	Delete(ctx context.Context, id string) error

	// MarkProcessing moves an uploaded document to processing.
	MarkProcessing(ctx context.Context, id string) (*model.Document, error)

	// Complete moves a processing document to completed and records the
	// extraction results.
	Complete(ctx context.Context, id string, res Completion) (*model.Document, error)

	// Fail moves a processing document to failed, recording the reason.
	// A non-nil partial preserves results obtained before the failure
	// (e.g. text extracted before entity recognition was rejected).
	Fail(ctx context.Context, id string, reason string, partial *Completion) (*model.Document, error)

	// Stats aggregates counts over all documents. recentWindow bounds the
	// "recent uploads" counter.
	Stats(ctx context.Context, recentWindow time.Duration) (*model.Stats, error)
}

// Completion carries the results of a successful (or partially successful)
// processing run.
type Completion struct {
	Text        string
	Confidence  float64
	Entities    []model.Entity
	ProcessedAt time.Time
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
