package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	extractmocks "medindex/internal/extract/mocks"
	"medindex/internal/fault"
	"medindex/internal/model"
	"medindex/internal/quality"
	"medindex/internal/repository"
	repomemory "medindex/internal/repository/memory"
	repomocks "medindex/internal/repository/mocks"
	"medindex/internal/security"
	"medindex/internal/storage"
	storagemocks "medindex/internal/storage/mocks"
	vsmocks "medindex/internal/vectorstore/mocks"
)

var pdfContent = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>")

const sampleText = "Patient was prescribed aspirin 100mg daily for knee pain."

var sampleEntities = []model.Entity{
	{Text: "aspirin", Label: model.LabelMedication, Start: 23, End: 30, Confidence: 0.9},
	{Text: "knee", Label: model.LabelBodyPart, Start: 47, End: 51, Confidence: 0.8},
}

type pipelineMocks struct {
	objects  *storagemocks.MockObjectStore
	vectors  *vsmocks.MockVectorStore
	ocr      *extractmocks.MockTextExtractor
	ner      *extractmocks.MockEntityExtractor
	embedder *extractmocks.MockEmbedder
}

func newTestService(repo repository.DocumentRepository) (IngestService, *pipelineMocks) {
	m := &pipelineMocks{
		objects:  new(storagemocks.MockObjectStore),
		vectors:  new(vsmocks.MockVectorStore),
		ocr:      new(extractmocks.MockTextExtractor),
		ner:      new(extractmocks.MockEntityExtractor),
		embedder: new(extractmocks.MockEmbedder),
	}
	svc := NewIngestService(
		repo, m.objects, m.vectors, m.ocr, m.ner, m.embedder,
		security.NewGate(50*1024*1024, nil),
		quality.NewGate(quality.DefaultConfig(), nil),
		PipelineConfig{ExtractTimeout: time.Minute, Workers: 2},
		nil,
	)
	return svc, m
}

func (m *pipelineMocks) expectHappyPath() {
	m.objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{Key: "documents/key.pdf"}, nil)
	m.ocr.On("ExtractText", mock.Anything, mock.Anything, mock.Anything).
		Return(sampleText, 0.92, nil)
	m.ner.On("ExtractEntities", mock.Anything, sampleText).
		Return(sampleEntities, nil)
	m.embedder.On("Embed", mock.Anything, mock.Anything).
		Return([]float32{0.1, 0.2, 0.3}, nil)
	m.vectors.On("Upsert", mock.Anything, mock.Anything, []float32{0.1, 0.2, 0.3}, mock.Anything).
		Return(nil)
}

func TestIngestService_Upload(t *testing.T) {
	svc, m := newTestService(repomemory.NewDocumentMemory())
	m.expectHappyPath()

	doc, err := svc.Upload(context.Background(), UploadInput{
		Reader:      bytes.NewReader(pdfContent),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Metadata:    map[string]any{"department": "radiology"},
	})

	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	assert.Equal(t, sampleText, doc.ExtractedText)
	assert.Equal(t, 0.92, doc.OCRConfidence)
	assert.Equal(t, 2, doc.EntityCount)
	assert.Equal(t, "radiology", doc.Metadata["department"])
	require.NotNil(t, doc.ProcessedAt)
	m.vectors.AssertCalled(t, "Upsert", mock.Anything, doc.ID, []float32{0.1, 0.2, 0.3}, mock.Anything)
}

func TestIngestService_Upload_RejectedBeforeStorage(t *testing.T) {
	repo := repomemory.NewDocumentMemory()
	svc, m := newTestService(repo)

	_, err := svc.Upload(context.Background(), UploadInput{
		Reader:      bytes.NewReader([]byte("MZ\x90\x00 payload")),
		Filename:    "setup.exe",
		ContentType: "application/octet-stream",
	})

	assert.True(t, fault.IsKind(err, fault.UnsupportedType), "got %v", err)
	// a rejected upload leaves no artifacts anywhere
	m.objects.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	res, listErr := repo.List(context.Background(), repository.PageQuery{Limit: 10})
	require.NoError(t, listErr)
	assert.Zero(t, res.Total)
}

func TestIngestService_Upload_InvalidMetadata(t *testing.T) {
	svc, _ := newTestService(repomemory.NewDocumentMemory())

	_, err := svc.Upload(context.Background(), UploadInput{
		Reader:      bytes.NewReader(pdfContent),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Metadata:    map[string]any{"nested": map[string]any{"a": 1}},
	})

	assert.True(t, fault.IsKind(err, fault.InvalidInput), "got %v", err)
}

func TestIngestService_Upload_LowConfidenceOCR(t *testing.T) {
	svc, m := newTestService(repomemory.NewDocumentMemory())
	m.objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{Key: "documents/key.pdf"}, nil)
	m.ocr.On("ExtractText", mock.Anything, mock.Anything, mock.Anything).
		Return(sampleText, 0.4, nil)

	doc, err := svc.Upload(context.Background(), UploadInput{
		Reader:      bytes.NewReader(pdfContent),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
	})

	assert.True(t, fault.IsKind(err, fault.LowQualityOCR), "got %v", err)
	require.NotNil(t, doc)
	assert.Equal(t, model.StatusFailed, doc.Status)
	// rejected text is not committed to the record
	assert.Empty(t, doc.ExtractedText)
	assert.NotEmpty(t, doc.FailureReason)
	m.ner.AssertNotCalled(t, "ExtractEntities", mock.Anything, mock.Anything)
}

func TestIngestService_Upload_EntityStageKeepsPartialText(t *testing.T) {
	svc, m := newTestService(repomemory.NewDocumentMemory())
	m.objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{Key: "documents/key.pdf"}, nil)
	m.ocr.On("ExtractText", mock.Anything, mock.Anything, mock.Anything).
		Return(sampleText, 0.92, nil)
	m.ner.On("ExtractEntities", mock.Anything, sampleText).
		Return(nil, errors.New("connection refused"))

	doc, err := svc.Upload(context.Background(), UploadInput{
		Reader:      bytes.NewReader(pdfContent),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
	})

	assert.True(t, fault.IsKind(err, fault.CollaboratorUnavailable), "got %v", err)
	require.NotNil(t, doc)
	assert.Equal(t, model.StatusFailed, doc.Status)
	assert.Equal(t, sampleText, doc.ExtractedText)
	assert.Equal(t, 0.92, doc.OCRConfidence)
}

func TestIngestService_Upload_ExtractionTimeout(t *testing.T) {
	svc, m := newTestService(repomemory.NewDocumentMemory())
	m.objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{Key: "documents/key.pdf"}, nil)
	m.ocr.On("ExtractText", mock.Anything, mock.Anything, mock.Anything).
		Return("", 0.0, context.DeadlineExceeded)

	doc, err := svc.Upload(context.Background(), UploadInput{
		Reader:      bytes.NewReader(pdfContent),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
	})

	assert.True(t, fault.IsKind(err, fault.ExtractionTimeout), "got %v", err)
	assert.Equal(t, model.StatusFailed, doc.Status)
}

func TestIngestService_Upload_RollsBackFileOnRecordFailure(t *testing.T) {
	repo := new(repomocks.MockDocumentRepository)
	svc, m := newTestService(repo)
	m.objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{Key: "documents/key.pdf"}, nil)
	m.objects.On("Delete", mock.Anything, mock.Anything).Return(nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := svc.Upload(context.Background(), UploadInput{
		Reader:      bytes.NewReader(pdfContent),
		Filename:    "report.pdf",
		ContentType: "application/pdf",
	})

	assert.Error(t, err)
	m.objects.AssertCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestIngestService_Delete(t *testing.T) {
	repo := repomemory.NewDocumentMemory()
	svc, m := newTestService(repo)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.Document{
		ID:          "doc-1",
		Filename:    "report.pdf",
		StoragePath: "documents/doc-1.pdf",
		Status:      model.StatusUploaded,
		UploadedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	m.objects.On("Delete", mock.Anything, "documents/doc-1.pdf").Return(nil)
	m.vectors.On("Delete", mock.Anything, "doc-1").Return(nil)

	require.NoError(t, svc.Delete(ctx, "doc-1"))
	m.objects.AssertExpectations(t)
	m.vectors.AssertExpectations(t)

	err = svc.Delete(ctx, "doc-1")
	assert.True(t, fault.IsKind(err, fault.NotFound), "got %v", err)
}

func TestIngestService_Delete_SurvivesArtifactCleanupFailure(t *testing.T) {
	repo := repomemory.NewDocumentMemory()
	svc, m := newTestService(repo)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.Document{
		ID: "doc-1", StoragePath: "documents/doc-1.pdf",
		Status: model.StatusUploaded, UploadedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	m.objects.On("Delete", mock.Anything, mock.Anything).Return(errors.New("storage down"))
	m.vectors.On("Delete", mock.Anything, mock.Anything).Return(errors.New("index down"))

	// the record delete already happened, so cleanup errors are not surfaced
	assert.NoError(t, svc.Delete(ctx, "doc-1"))
	_, err = repo.FindByID(ctx, "doc-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIngestService_BatchUpload(t *testing.T) {
	svc, m := newTestService(repomemory.NewDocumentMemory())
	m.expectHappyPath()

	inputs := []UploadInput{
		{Reader: bytes.NewReader(pdfContent), Filename: "a.pdf", ContentType: "application/pdf"},
		{Reader: bytes.NewReader([]byte("plain text")), Filename: "b.exe", ContentType: "application/octet-stream"},
		{Reader: bytes.NewReader(pdfContent), Filename: "c.pdf", ContentType: "application/pdf"},
	}

	results := svc.BatchUpload(context.Background(), inputs)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "a.pdf", results[0].Document.Filename)
	assert.True(t, fault.IsKind(results[1].Err, fault.UnsupportedType), "got %v", results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "c.pdf", results[2].Document.Filename)
}

func TestIngestService_BatchUpload_CancelledContextSkipsUnscheduled(t *testing.T) {
	repo := repomemory.NewDocumentMemory()
	svc, _ := newTestService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := make([]UploadInput, 8)
	for i := range inputs {
		inputs[i] = UploadInput{
			Reader:      bytes.NewReader(pdfContent),
			Filename:    fmt.Sprintf("doc-%d.pdf", i),
			ContentType: "application/pdf",
		}
	}

	results := svc.BatchUpload(ctx, inputs)

	// cancellation before dispatch is deterministic: nothing is scheduled,
	// no record is created, every item carries the context error
	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.Nil(t, r.Document, "item %d", i)
		assert.ErrorIs(t, r.Err, context.Canceled, "item %d", i)
	}
	list, err := repo.List(context.Background(), repository.PageQuery{Limit: 100})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestIngestService_GetAndList(t *testing.T) {
	repo := repomemory.NewDocumentMemory()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.Document{
		ID: "doc-1", Filename: "a.pdf", Status: model.StatusUploaded, UploadedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	doc, err := svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", doc.Filename)

	_, err = svc.Get(ctx, "missing")
	assert.True(t, fault.IsKind(err, fault.NotFound), "got %v", err)

	_, err = svc.Get(ctx, "")
	assert.True(t, fault.IsKind(err, fault.InvalidInput), "got %v", err)

	list, err := svc.List(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}
