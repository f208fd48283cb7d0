// Package quality implements the post-extraction quality gate: OCR output
// acceptance and NER output acceptance with duplicate consolidation. A
// rejection here lands the document in the failed state.
package quality

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"medindex/internal/fault"
	"medindex/internal/model"
)

// Config holds the acceptance thresholds.
type Config struct {
	// MinOCRConfidence is the minimum extraction confidence for a document
	// to be committed.
	MinOCRConfidence float64
	// MinTextLength is the minimum extracted text length in characters.
	MinTextLength int
	// MaxNoiseRatio bounds the fraction of non-alphanumeric, non-space
	// characters before text is considered gibberish.
	MaxNoiseRatio float64
	// MaxDigitRatio bounds the fraction of digits before text is considered
	// gibberish.
	MaxDigitRatio float64
	// MinEntityConfidence is the per-entity confidence floor used for the
	// low-confidence fraction check.
	MinEntityConfidence float64
	// MaxLowConfidenceFraction is the maximum tolerated fraction of
	// entities below MinEntityConfidence.
	MaxLowConfidenceFraction float64
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		MinOCRConfidence:         0.7,
		MinTextLength:            10,
		MaxNoiseRatio:            0.3,
		MaxDigitRatio:            0.5,
		MinEntityConfidence:      0.5,
		MaxLowConfidenceFraction: 0.5,
	}
}

// glyphRunPatterns flag long runs of characters OCR commonly confuses
// (0/O, 1/l/I, 5/S, 8/B). Runs of five or more are treated as misrecognized
// output; shorter runs occur in ordinary numbers.
var glyphRunPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[0O]{5,}`),
	regexp.MustCompile(`[1lI]{5,}`),
	regexp.MustCompile(`[5S]{5,}`),
	regexp.MustCompile(`[8B]{5,}`),
}

// Gate applies the quality checks.
type Gate struct {
	cfg Config
	log *zap.Logger
}

// NewGate builds a gate; a nil logger is replaced with a no-op one.
func NewGate(cfg Config, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{cfg: cfg, log: log}
}

// CheckOCR accepts extracted text when confidence meets the threshold, the
// text is long enough, and it does not look like misrecognized noise.
func (g *Gate) CheckOCR(text string, confidence float64) error {
	if confidence < g.cfg.MinOCRConfidence {
		return fault.Newf(fault.LowQualityOCR, "confidence %.2f below threshold %.2f", confidence, g.cfg.MinOCRConfidence)
	}
	trimmed := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(trimmed); n < g.cfg.MinTextLength {
		return fault.Newf(fault.LowQualityOCR, "extracted text too short: %d characters (min %d)", n, g.cfg.MinTextLength)
	}
	if reason := g.gibberishReason(trimmed); reason != "" {
		return fault.New(fault.LowQualityOCR, reason)
	}
	return nil
}

func (g *Gate) gibberishReason(text string) string {
	var noise, digits int
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
		default:
			noise++
		}
	}
	total := len([]rune(text))
	if total == 0 {
		return "extracted text is empty"
	}
	if float64(noise)/float64(total) > g.cfg.MaxNoiseRatio {
		return "text exceeds the non-alphanumeric noise threshold"
	}
	if float64(digits)/float64(total) > g.cfg.MaxDigitRatio {
		return "text is dominated by digits"
	}
	for _, p := range glyphRunPatterns {
		if p.MatchString(text) {
			return "text contains repeated misrecognized glyph runs"
		}
	}
	words := strings.Fields(text)
	if len(words) > 10 {
		freq := make(map[string]int, len(words))
		max := 0
		for _, w := range words {
			freq[w]++
			if freq[w] > max {
				max = freq[w]
			}
		}
		if float64(max) > float64(len(words))*0.3 {
			return "text is dominated by a single repeated word"
		}
	}
	return ""
}

// CheckEntities validates NER output against the source text. Entities with
// out-of-range spans are discarded; duplicates (same text and label with
// overlapping spans) are consolidated keeping the highest-confidence
// instance. Pathological over-extraction or a majority of low-confidence
// entities rejects the whole result. The surviving entities are returned
// sorted by start offset.
func (g *Gate) CheckEntities(text string, entities []model.Entity) ([]model.Entity, error) {
	kept := make([]model.Entity, 0, len(entities))
	invalid := 0
	for _, e := range entities {
		if !e.ValidSpan(len(text)) {
			invalid++
			continue
		}
		kept = append(kept, e)
	}
	if invalid > 0 {
		g.log.Warn("discarded entities with out-of-range spans",
			zap.Int("discarded", invalid),
			zap.Int("total", len(entities)))
	}

	kept, duplicates := dedupe(kept)
	if duplicates > 0 {
		g.log.Warn("consolidated duplicate entities", zap.Int("duplicates", duplicates))
	}

	// More than one entity per 4 characters of text is over-extraction.
	if len(kept) > 10 && len(kept)*4 > len(text) {
		return nil, fault.Newf(fault.LowQualityNER, "%d entities is pathological for %d characters of text", len(kept), len(text))
	}

	if len(kept) > 0 {
		low := 0
		for _, e := range kept {
			if e.Confidence < g.cfg.MinEntityConfidence {
				low++
			}
		}
		if float64(low)/float64(len(kept)) > g.cfg.MaxLowConfidenceFraction {
			return nil, fault.Newf(fault.LowQualityNER, "%d of %d entities below confidence %.2f", low, len(kept), g.cfg.MinEntityConfidence)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept, nil
}

// dedupe removes entities whose text and label match an already-kept entity
// with an overlapping span, keeping the higher-confidence instance. Returns
// the survivors and the number of duplicates consolidated.
func dedupe(entities []model.Entity) ([]model.Entity, int) {
	type key struct {
		text  string
		label model.EntityLabel
	}
	byKey := make(map[key][]int)
	out := make([]model.Entity, 0, len(entities))
	duplicates := 0

	for _, e := range entities {
		k := key{text: strings.ToLower(e.Text), label: e.Label}
		dup := false
		for _, idx := range byKey[k] {
			other := out[idx]
			if e.Start < other.End && other.Start < e.End {
				dup = true
				if e.Confidence > other.Confidence {
					out[idx] = e
				}
				break
			}
		}
		if dup {
			duplicates++
			continue
		}
		out = append(out, e)
		byKey[k] = append(byKey[k], len(out)-1)
	}
	return out, duplicates
}
