package embed

import (
	"context"
	"log/slog"

	"github.com/ledgersmith/cellflow/internal/match"
	"github.com/ledgersmith/cellflow/internal/model"
)

// DefaultTopK is the default number of similarity candidates returned.
const DefaultTopK = 3

// Matcher ranks ontology categories by embedding similarity to a line-item
// label. It handles paraphrase and variant labels the rule matcher misses.
type Matcher struct {
	embedder Embedder
	index    *Index
	cache    *vectorCache
	logger   *slog.Logger
	topK     int
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithTopK overrides the number of candidates returned.
func WithTopK(k int) MatcherOption {
	return func(m *Matcher) {
		m.topK = k
	}
}

// NewMatcher creates an embedding similarity matcher over a prebuilt index.
func NewMatcher(embedder Embedder, index *Index, logger *slog.Logger, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		embedder: embedder,
		index:    index,
		cache:    newVectorCache(),
		logger:   logger,
		topK:     DefaultTopK,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Propose returns the top-K categories by cosine similarity. Embedding
// failures degrade gracefully: an empty candidate list is returned and a
// warning logged; classification of the line item continues.
func (m *Matcher) Propose(ctx context.Context, item model.LineItem) []model.CandidateMatch {
	text := item.Label
	if item.SectionHint != "" {
		text = item.Label + " (" + item.SectionHint + ")"
	}

	key := match.Normalize(text)
	if key == "" {
		return nil
	}

	vec, err := m.cache.getOrCompute(ctx, key, m.embedder, text)
	if err != nil {
		m.logger.Warn("embedding call failed, skipping similarity candidates",
			"source_id", item.SourceID,
			"label", item.Label,
			"error", err)
		return nil
	}

	scored := m.index.Search(vec, m.topK)

	candidates := make(model.CandidateMatches, 0, len(scored))
	for _, s := range scored {
		score := s.Similarity
		if score < 0 {
			score = 0
		}
		candidates = append(candidates, model.CandidateMatch{
			CategoryID: s.CategoryID,
			Score:      score,
			Strategy:   model.StrategyEmbedding,
			Rationale:  "cosine similarity to category exemplar phrases",
		})
	}

	return candidates
}

// CacheSize returns the number of labels embedded so far in this run.
func (m *Matcher) CacheSize() int {
	return m.cache.size()
}
