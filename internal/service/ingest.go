package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medindex/internal/extract"
	"medindex/internal/fault"
	"medindex/internal/model"
	"medindex/internal/quality"
	"medindex/internal/repository"
	"medindex/internal/security"
	"medindex/internal/storage"
	"medindex/internal/validate"
	"medindex/internal/vectorstore"
)

// UploadInput carries one file submitted for ingestion.
type UploadInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Metadata    map[string]any
}

// BatchResult pairs each batch item with its outcome, in submission order.
type BatchResult struct {
	Document *model.Document
	Err      error
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// IngestService runs the ingestion pipeline: validation, object storage,
// extraction, quality gating and vector indexing. Upload drives a document
// through the whole lifecycle synchronously; when processing fails, the
// failed document is returned together with the fault that stopped it.
type IngestService interface {
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)

	// BatchUpload processes inputs concurrently on a bounded worker pool.
	// Cancelling ctx stops scheduling new items; items already dispatched
	// run to completion so no document is left mid-transition.
	BatchUpload(ctx context.Context, inputs []UploadInput) []BatchResult

	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)

	// Delete removes the record, the stored file and the vector. The record
	// goes first: once it is gone the document is unreachable even if the
	// artifact cleanup partially fails.
	Delete(ctx context.Context, id string) error

	Stats(ctx context.Context) (*model.Stats, error)
}

// PipelineConfig bounds the processing stage.
type PipelineConfig struct {
	ExtractTimeout time.Duration
	Workers        int
}

type ingestService struct {
	repo     repository.DocumentRepository
	objects  storage.ObjectStore
	vectors  vectorstore.VectorStore
	ocr      extract.TextExtractor
	ner      extract.EntityExtractor
	embedder extract.Embedder
	files    *security.Gate
	quality  *quality.Gate
	log      *zap.Logger

	extractTimeout time.Duration
	workers        int
}

// NewIngestService constructs the pipeline service.
func NewIngestService(
	repo repository.DocumentRepository,
	objects storage.ObjectStore,
	vectors vectorstore.VectorStore,
	ocr extract.TextExtractor,
	ner extract.EntityExtractor,
	embedder extract.Embedder,
	files *security.Gate,
	qualityGate *quality.Gate,
	cfg PipelineConfig,
	log *zap.Logger,
) IngestService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 2 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &ingestService{
		repo:           repo,
		objects:        objects,
		vectors:        vectors,
		ocr:            ocr,
		ner:            ner,
		embedder:       embedder,
		files:          files,
		quality:        qualityGate,
		log:            log,
		extractTimeout: cfg.ExtractTimeout,
		workers:        cfg.Workers,
	}
}

func (s *ingestService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if in.Reader == nil {
		return nil, fault.New(fault.InvalidInput, "no file content provided")
	}
	metadata, err := validate.ValidateMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}

	// Read one byte past the limit so an oversize stream is detected without
	// buffering the whole thing.
	content, err := io.ReadAll(io.LimitReader(in.Reader, s.files.MaxSize()+1))
	if err != nil {
		return nil, fault.Wrap(fault.InvalidInput, "read upload", err)
	}
	if err := s.files.Check(in.Filename, int64(len(content)), content); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	key := filepath.ToSlash(filepath.Join("documents", id+strings.ToLower(filepath.Ext(in.Filename))))

	objInfo, err := s.objects.Put(ctx, key, bytes.NewReader(content), int64(len(content)), in.ContentType)
	if err != nil {
		return nil, fault.Wrap(fault.CollaboratorUnavailable, "store file", err)
	}

	doc := &model.Document{
		ID:          id,
		Filename:    in.Filename,
		StoragePath: objInfo.Key,
		Size:        int64(len(content)),
		ContentType: in.ContentType,
		Status:      model.StatusUploaded,
		UploadedAt:  time.Now().UTC(),
		Metadata:    metadata,
	}
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.log.Error("rollback file delete failed", zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("save document record: %w", err)
	}

	return s.process(ctx, stored, content)
}

// process runs a created document through extraction, quality gating and
// indexing. It always leaves the document in a terminal state.
func (s *ingestService) process(ctx context.Context, doc *model.Document, content []byte) (*model.Document, error) {
	doc, err := s.repo.MarkProcessing(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	text, confidence, err := s.ocr.ExtractText(extractCtx, content, doc.ContentType)
	if err != nil {
		ferr := classifyCollaborator(err, "text extraction")
		return s.fail(ctx, doc.ID, ferr, nil)
	}

	if err := s.quality.CheckOCR(text, confidence); err != nil {
		// rejected text is not committed to the record
		return s.fail(ctx, doc.ID, err, nil)
	}

	partial := &repository.Completion{Text: text, Confidence: confidence}

	entities, err := s.ner.ExtractEntities(extractCtx, text)
	if err != nil {
		return s.fail(ctx, doc.ID, classifyCollaborator(err, "entity recognition"), partial)
	}
	entities, err = s.quality.CheckEntities(text, entities)
	if err != nil {
		return s.fail(ctx, doc.ID, err, partial)
	}
	partial.Entities = entities

	vector, err := s.embedder.Embed(extractCtx, embeddingText(doc, text, entities))
	if err != nil {
		return s.fail(ctx, doc.ID, classifyCollaborator(err, "embedding"), partial)
	}
	if err := s.vectors.Upsert(ctx, doc.ID, vector, map[string]string{"filename": doc.Filename}); err != nil {
		return s.fail(ctx, doc.ID, fault.Wrap(fault.CollaboratorUnavailable, "index vector", err), partial)
	}

	completed, err := s.repo.Complete(ctx, doc.ID, repository.Completion{
		Text:        text,
		Confidence:  confidence,
		Entities:    entities,
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("complete document: %w", err)
	}
	s.log.Info("document processed",
		zap.String("id", completed.ID),
		zap.Float64("confidence", confidence),
		zap.Int("entities", len(entities)))
	return completed, nil
}

// fail records the terminal failure and returns the failed document along
// with the fault. The write uses a detached context so a cancelled request
// cannot leave the document stuck in processing.
func (s *ingestService) fail(ctx context.Context, id string, ferr error, partial *repository.Completion) (*model.Document, error) {
	doc, err := s.repo.Fail(context.WithoutCancel(ctx), id, ferr.Error(), partial)
	if err != nil {
		s.log.Error("record failure", zap.String("id", id), zap.Error(err))
		return nil, ferr
	}
	s.log.Warn("document rejected", zap.String("id", id), zap.String("reason", ferr.Error()))
	return doc, ferr
}

func (s *ingestService) BatchUpload(ctx context.Context, inputs []UploadInput) []BatchResult {
	results := make([]BatchResult, len(inputs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := s.workers
	if workers > len(inputs) {
		workers = len(inputs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// dispatched items run to completion even if ctx is
				// cancelled mid-batch
				doc, err := s.Upload(context.WithoutCancel(ctx), inputs[i])
				results[i] = BatchResult{Document: doc, Err: err}
			}
		}()
	}

	for i := range inputs {
		// checked before the select: a ready worker must not win the race
		// against an already-cancelled context
		if ctx.Err() != nil {
			results[i] = BatchResult{Err: ctx.Err()}
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			results[i] = BatchResult{Err: ctx.Err()}
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *ingestService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, fault.New(fault.InvalidInput, "id is required")
	}
	doc, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fault.Newf(fault.NotFound, "document %s not found", id)
	}
	return doc, err
}

func (s *ingestService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *ingestService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fault.New(fault.InvalidInput, "id is required")
	}
	doc, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fault.Newf(fault.NotFound, "document %s not found", id)
	}
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fault.Newf(fault.NotFound, "document %s not found", id)
		}
		return err
	}
	// Best-effort artifact cleanup: the record is gone, so failures here
	// only leak storage, they cannot resurrect the document.
	if err := s.objects.Delete(ctx, doc.StoragePath); err != nil {
		s.log.Error("delete stored file", zap.String("key", doc.StoragePath), zap.Error(err))
	}
	if err := s.vectors.Delete(ctx, id); err != nil {
		s.log.Error("delete vector", zap.String("id", id), zap.Error(err))
	}
	return nil
}

func (s *ingestService) Stats(ctx context.Context) (*model.Stats, error) {
	return s.repo.Stats(ctx, 24*time.Hour)
}

// classifyCollaborator maps a collaborator error onto the fault taxonomy:
// deadline overruns are ExtractionTimeout, everything else that is not
// already a fault becomes CollaboratorUnavailable.
func classifyCollaborator(err error, stage string) error {
	var f *fault.Fault
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.ExtractionTimeout, stage+" timed out", err)
	}
	return fault.Wrap(fault.CollaboratorUnavailable, stage+" failed", err)
}

// embeddingText builds the text that is embedded for a document: the
// extracted text enriched with entity mentions and metadata values, so a
// search for a medication name or a metadata tag can surface the document.
func embeddingText(doc *model.Document, text string, entities []model.Entity) string {
	var b strings.Builder
	b.WriteString(text)

	seen := make(map[string]struct{}, len(entities))
	mentions := make([]string, 0, len(entities))
	for _, e := range entities {
		key := strings.ToLower(e.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		mentions = append(mentions, e.Text)
	}
	if len(mentions) > 0 {
		b.WriteString("\nEntities: ")
		b.WriteString(strings.Join(mentions, ", "))
	}

	if len(doc.Metadata) > 0 {
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, doc.Metadata[k])
		}
	}
	return b.String()
}
