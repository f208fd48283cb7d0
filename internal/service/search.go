package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"medindex/internal/extract"
	"medindex/internal/fault"
	"medindex/internal/model"
	"medindex/internal/repository"
	"medindex/internal/validate"
	"medindex/internal/vectorstore"
)

// SearchQuery is a validated semantic search request. MinConfidence filters
// on the OCR confidence of the matched document, not on vector similarity.
// EntityFilter restricts results to documents carrying at least one entity
// with that label; empty or "all" disables the filter.
type SearchQuery struct {
	Text          string
	Limit         int
	MinConfidence float64
	EntityFilter  string
}

// SearchHit is one scored result. MatchedEntities is populated only when an
// entity filter was applied.
type SearchHit struct {
	Document        model.Document `json:"document"`
	Score           float64        `json:"score"`
	MatchedEntities []model.Entity `json:"matched_entities,omitempty"`
}

// SearchResult is the response envelope for a search.
type SearchResult struct {
	Query        string      `json:"query"`
	Results      []SearchHit `json:"results"`
	TotalMatches int         `json:"total_matches"`
	ElapsedMS    int64       `json:"elapsed_ms"`
}

// SearchService answers semantic queries over completed documents.
type SearchService interface {
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)
}

// SearchConfig bounds result set size and similarity.
type SearchConfig struct {
	// MaxResults caps the requested limit.
	MaxResults int
	// OverfetchFactor multiplies the vector query limit when post-filters
	// are active, so filtered-out matches do not starve the result set.
	OverfetchFactor int
	// MinSimilarity drops matches below this cosine similarity.
	MinSimilarity float64
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxResults:      100,
		OverfetchFactor: 3,
		MinSimilarity:   0.1,
	}
}

type searchService struct {
	repo     repository.DocumentRepository
	vectors  vectorstore.VectorStore
	embedder extract.Embedder
	cfg      SearchConfig
	log      *zap.Logger
}

func NewSearchService(
	repo repository.DocumentRepository,
	vectors vectorstore.VectorStore,
	embedder extract.Embedder,
	cfg SearchConfig,
	log *zap.Logger,
) SearchService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = 3
	}
	return &searchService{repo: repo, vectors: vectors, embedder: embedder, cfg: cfg, log: log}
}

func (s *searchService) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	started := time.Now()

	text, err := validate.ValidateSearchQuery(q.Text)
	if err != nil {
		return nil, err
	}
	if q.MinConfidence < 0 || q.MinConfidence > 1 {
		return nil, fault.New(fault.InvalidInput, "min_confidence must be between 0 and 1")
	}
	filter, err := parseEntityFilter(q.EntityFilter)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, classifyCollaborator(err, "query embedding")
	}

	fetch := limit
	if filter != "" || q.MinConfidence > 0 {
		fetch = limit * s.cfg.OverfetchFactor
	}
	matches, err := s.vectors.Query(ctx, vector, fetch)
	if err != nil {
		return nil, fault.Wrap(fault.CollaboratorUnavailable, "vector search", err)
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		if m.Score < s.cfg.MinSimilarity {
			continue
		}
		doc, err := s.repo.FindByID(ctx, m.DocID)
		if err != nil {
			// the index may briefly lag the record store after a delete
			s.log.Debug("skipping stale vector match", zap.String("id", m.DocID), zap.Error(err))
			continue
		}
		if doc.Status != model.StatusCompleted {
			continue
		}
		if q.MinConfidence > 0 && doc.OCRConfidence < q.MinConfidence {
			continue
		}
		hit := SearchHit{Document: *doc, Score: m.Score}
		if filter != "" {
			matched := entitiesWithLabel(doc.Entities, filter)
			if len(matched) == 0 {
				continue
			}
			hit.MatchedEntities = matched
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return laterProcessed(hits[i].Document, hits[j].Document)
	})

	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return &SearchResult{
		Query:        text,
		Results:      hits,
		TotalMatches: total,
		ElapsedMS:    time.Since(started).Milliseconds(),
	}, nil
}

func parseEntityFilter(s string) (model.EntityLabel, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return "", nil
	}
	if !model.KnownLabel(s) {
		return "", fault.Newf(fault.InvalidInput, "unknown entity filter %q", s)
	}
	return model.ParseEntityLabel(s), nil
}

func entitiesWithLabel(entities []model.Entity, label model.EntityLabel) []model.Entity {
	var out []model.Entity
	for _, e := range entities {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out
}

func laterProcessed(a, b model.Document) bool {
	if a.ProcessedAt == nil {
		return false
	}
	if b.ProcessedAt == nil {
		return true
	}
	return a.ProcessedAt.After(*b.ProcessedAt)
}
