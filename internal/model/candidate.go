package model

import (
	"fmt"
	"sort"
)

// Strategy identifies which classification strategy produced a candidate.
type Strategy string

// Classification strategy constants.
const (
	StrategyRule      Strategy = "rule"
	StrategyEmbedding Strategy = "embedding"
	StrategyLLM       Strategy = "llm"
)

// CandidateMatch is one strategy's proposal for a line item's category.
type CandidateMatch struct {
	CategoryID string
	Score      float64
	Strategy   Strategy
	Rationale  string
}

// Validate ensures the CandidateMatch has valid data.
func (c *CandidateMatch) Validate() error {
	if c.CategoryID == "" {
		return fmt.Errorf("category id is required")
	}

	if c.Score < 0.0 || c.Score > 1.0 {
		return fmt.Errorf("score must be between 0.0 and 1.0, got %.2f", c.Score)
	}

	switch c.Strategy {
	case StrategyRule, StrategyEmbedding, StrategyLLM:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}

	return nil
}

// CandidateMatches is a slice of CandidateMatch supporting sorting and
// utility methods.
type CandidateMatches []CandidateMatch

// Len implements sort.Interface.
func (m CandidateMatches) Len() int {
	return len(m)
}

// Less implements sort.Interface - higher scores come first.
func (m CandidateMatches) Less(i, j int) bool {
	if m[i].Score != m[j].Score {
		return m[i].Score > m[j].Score
	}
	// Equal scores sort by category id for consistency
	return m[i].CategoryID < m[j].CategoryID
}

// Swap implements sort.Interface.
func (m CandidateMatches) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// Sort sorts the candidates by score in descending order.
func (m CandidateMatches) Sort() {
	sort.Sort(m)
}

// Top returns the highest-scoring candidate, or nil if empty. The receiver
// is left untouched so strategies may hand out shared slices.
func (m CandidateMatches) Top() *CandidateMatch {
	if len(m) == 0 {
		return nil
	}
	sorted := m.sortedCopy()
	return &sorted[0]
}

// TopN returns the N highest-scoring candidates without mutating the
// receiver.
func (m CandidateMatches) TopN(n int) CandidateMatches {
	if n <= 0 {
		return CandidateMatches{}
	}

	sorted := m.sortedCopy()
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func (m CandidateMatches) sortedCopy() CandidateMatches {
	sorted := make(CandidateMatches, len(m))
	copy(sorted, m)
	sort.Sort(sorted)
	return sorted
}

// ByStrategy returns the candidates produced by the given strategy, sorted.
func (m CandidateMatches) ByStrategy(s Strategy) CandidateMatches {
	var result CandidateMatches
	for _, c := range m {
		if c.Strategy == s {
			result = append(result, c)
		}
	}
	result.Sort()
	return result
}

// Validate ensures all candidates in the slice are valid.
func (m CandidateMatches) Validate() error {
	for i, c := range m {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candidate at index %d: %w", i, err)
		}
	}
	return nil
}
