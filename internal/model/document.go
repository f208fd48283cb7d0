package model

import "time"

// DocumentStatus is the processing state of a document. Transitions form a
// small state machine: uploaded -> processing -> completed|failed. The two
// terminal states are never left; a failed document requires a fresh upload.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to "to" is a legal transition.
func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	switch s {
	case StatusUploaded:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Document represents an ingested medical document and its processing
// results. It is a pure domain model with no database-specific tags; it is
// owned by the ingestion pipeline and mutated only through repository
// transitions, so EntityCount always equals len(Entities) once completed.
type Document struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	StoragePath   string         `json:"storage_path"`
	Size          int64          `json:"size"`
	ContentType   string         `json:"content_type"`
	Status        DocumentStatus `json:"status"`
	UploadedAt    time.Time      `json:"uploaded_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	ExtractedText string         `json:"extracted_text,omitempty"`
	OCRConfidence float64        `json:"ocr_confidence,omitempty"`
	EntityCount   int            `json:"entity_count"`
	Entities      []Entity       `json:"entities,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// Stats is an aggregate view over all stored documents. RecentUploads counts
// documents uploaded within the trailing 24 hours.
type Stats struct {
	TotalDocuments int                    `json:"total_documents"`
	TotalEntities  int                    `json:"total_entities"`
	StatusCounts   map[DocumentStatus]int `json:"status_counts"`
	EntityLabels   map[EntityLabel]int    `json:"entity_labels"`
	RecentUploads  int                    `json:"recent_uploads"`
}
