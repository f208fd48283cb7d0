// Package memory provides an in-memory repository.DocumentRepository for
// tests and single-process deployments. All reads return deep copies so
// callers cannot mutate stored state behind the lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"medindex/internal/model"
	"medindex/internal/repository"
)

type DocumentMemory struct {
	mu   sync.RWMutex
	docs map[string]*model.Document
}

func NewDocumentMemory() *DocumentMemory {
	return &DocumentMemory{docs: make(map[string]*model.Document)}
}

var _ repository.DocumentRepository = (*DocumentMemory)(nil)

func (r *DocumentMemory) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := clone(doc)
	r.docs[doc.ID] = stored
	return clone(stored), nil
}

func (r *DocumentMemory) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(d), nil
}

func (r *DocumentMemory) List(_ context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.Document, 0, len(r.docs))
	for _, d := range r.docs {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].UploadedAt.After(all[j].UploadedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	start := pq.Offset
	if start > total {
		start = total
	}
	end := start + pq.Limit
	if pq.Limit <= 0 || end > total {
		end = total
	}

	items := make([]model.Document, 0, end-start)
	for _, d := range all[start:end] {
		items = append(items, *clone(d))
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

func (r *DocumentMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *DocumentMemory) MarkProcessing(_ context.Context, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !d.Status.CanTransition(model.StatusProcessing) {
		return nil, repository.ErrIllegalTransition
	}
	d.Status = model.StatusProcessing
	return clone(d), nil
}

func (r *DocumentMemory) Complete(_ context.Context, id string, res repository.Completion) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !d.Status.CanTransition(model.StatusCompleted) {
		return nil, repository.ErrIllegalTransition
	}
	d.Status = model.StatusCompleted
	d.ExtractedText = res.Text
	d.OCRConfidence = res.Confidence
	d.Entities = append([]model.Entity(nil), res.Entities...)
	d.EntityCount = len(res.Entities)
	at := res.ProcessedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	d.ProcessedAt = &at
	return clone(d), nil
}

func (r *DocumentMemory) Fail(_ context.Context, id, reason string, partial *repository.Completion) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !d.Status.CanTransition(model.StatusFailed) {
		return nil, repository.ErrIllegalTransition
	}
	d.Status = model.StatusFailed
	d.FailureReason = reason
	at := time.Now().UTC()
	if partial != nil {
		d.ExtractedText = partial.Text
		d.OCRConfidence = partial.Confidence
		d.Entities = append([]model.Entity(nil), partial.Entities...)
		d.EntityCount = len(partial.Entities)
		if !partial.ProcessedAt.IsZero() {
			at = partial.ProcessedAt
		}
	}
	d.ProcessedAt = &at
	return clone(d), nil
}

func (r *DocumentMemory) Stats(_ context.Context, recentWindow time.Duration) (*model.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &model.Stats{
		StatusCounts: make(map[model.DocumentStatus]int),
		EntityLabels: make(map[model.EntityLabel]int),
	}
	cutoff := time.Now().UTC().Add(-recentWindow)
	for _, d := range r.docs {
		s.TotalDocuments++
		s.StatusCounts[d.Status]++
		s.TotalEntities += d.EntityCount
		for _, e := range d.Entities {
			s.EntityLabels[e.Label]++
		}
		if d.UploadedAt.After(cutoff) {
			s.RecentUploads++
		}
	}
	return s, nil
}

func clone(d *model.Document) *model.Document {
	out := *d
	if d.ProcessedAt != nil {
		at := *d.ProcessedAt
		out.ProcessedAt = &at
	}
	if d.Entities != nil {
		out.Entities = append([]model.Entity(nil), d.Entities...)
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
