// Package match implements the deterministic keyword matcher over the
// category ontology. It is the cheapest classification strategy and the
// highest-precision one when it fires.
package match

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
)

// DefaultMinScore is the minimum keyword overlap score for a candidate to be
// emitted.
const DefaultMinScore = 0.2

// weightedKeyword is a pre-tokenized keyword with its specificity weight.
type weightedKeyword struct {
	text   string
	tokens []string
	weight float64
}

// Matcher scores line-item labels against category keyword sets.
type Matcher struct {
	ont      *ontology.Ontology
	keywords map[string][]weightedKeyword
	minScore float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMinScore overrides the minimum candidate score.
func WithMinScore(score float64) Option {
	return func(m *Matcher) {
		m.minScore = score
	}
}

// NewMatcher creates a matcher with keyword weights precomputed from the
// ontology. Longer keywords and keywords shared by fewer categories weigh
// more.
func NewMatcher(ont *ontology.Ontology, opts ...Option) *Matcher {
	m := &Matcher{
		ont:      ont,
		keywords: make(map[string][]weightedKeyword),
		minScore: DefaultMinScore,
	}
	for _, opt := range opts {
		opt(m)
	}

	total := ont.Len()
	for _, cat := range ont.Categories() {
		var wks []weightedKeyword
		for _, kw := range cat.Keywords {
			tokens := Tokenize(kw)
			if len(tokens) == 0 {
				continue
			}
			norm := strings.Join(tokens, " ")
			df := ont.KeywordFrequency(strings.ToLower(strings.TrimSpace(kw)))
			if df < 1 {
				df = 1
			}
			// Specificity: token count scaled by inverse document frequency
			// across the catalogue.
			weight := float64(len(tokens)) * (1.0 + math.Log(float64(total)/float64(df)))
			wks = append(wks, weightedKeyword{text: norm, tokens: tokens, weight: weight})
		}
		if len(wks) > 0 {
			m.keywords[cat.ID] = wks
		}
	}

	return m
}

// Propose returns candidate categories for the line item's label. No match
// yields an empty list, never an error. Deterministic for a fixed ontology
// version.
func (m *Matcher) Propose(_ context.Context, item model.LineItem) []model.CandidateMatch {
	labelTokens := Tokenize(item.Label)
	if len(labelTokens) == 0 {
		return nil
	}

	present := make(map[string]bool, len(labelTokens))
	for _, tok := range labelTokens {
		present[tok] = true
	}

	var candidates model.CandidateMatches
	for _, cat := range m.ont.Categories() {
		wks := m.keywords[cat.ID]
		if len(wks) == 0 {
			continue
		}

		var matchedWeight, totalWeight float64
		var matched []string
		for _, wk := range wks {
			totalWeight += wk.weight
			if containsAll(present, wk.tokens) {
				matchedWeight += wk.weight
				matched = append(matched, wk.text)
			}
		}

		if matchedWeight <= 0 {
			continue
		}

		score := matchedWeight / totalWeight
		if score > 1.0 {
			score = 1.0
		}
		if score < m.minScore {
			continue
		}

		candidates = append(candidates, model.CandidateMatch{
			CategoryID: cat.ID,
			Score:      score,
			Strategy:   model.StrategyRule,
			Rationale:  fmt.Sprintf("matched keywords: %s", strings.Join(matched, ", ")),
		})
	}

	candidates.Sort()
	return candidates
}

// containsAll reports whether every token is present in the label token set.
func containsAll(present map[string]bool, tokens []string) bool {
	for _, tok := range tokens {
		if !present[tok] {
			return false
		}
	}
	return true
}
