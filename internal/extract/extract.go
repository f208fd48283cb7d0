// Package extract defines the external collaborator interfaces of the
// ingestion pipeline: text extraction (OCR), entity recognition (NER) and
// text embedding. Remote HTTP implementations live in the remote subpackage;
// testify mocks in mocks.
package extract

import (
	"context"

	"medindex/internal/model"
)

// TextExtractor turns a document's raw bytes into text with an overall
// extraction confidence in [0, 1].
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte, contentType string) (text string, confidence float64, err error)
}

// EntityExtractor recognizes medical entities in extracted text.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]model.Entity, error)
}

// Embedder converts text into a dense vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
