package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateMatchValidate(t *testing.T) {
	tests := []struct {
		name      string
		candidate CandidateMatch
		wantErr   string
	}{
		{
			name:      "valid rule candidate",
			candidate: CandidateMatch{CategoryID: "rev-product", Score: 0.9, Strategy: StrategyRule},
		},
		{
			name:      "missing category id",
			candidate: CandidateMatch{Score: 0.9, Strategy: StrategyRule},
			wantErr:   "category id is required",
		},
		{
			name:      "score above one",
			candidate: CandidateMatch{CategoryID: "rev-product", Score: 1.5, Strategy: StrategyEmbedding},
			wantErr:   "score must be between",
		},
		{
			name:      "negative score",
			candidate: CandidateMatch{CategoryID: "rev-product", Score: -0.1, Strategy: StrategyLLM},
			wantErr:   "score must be between",
		},
		{
			name:      "unknown strategy",
			candidate: CandidateMatch{CategoryID: "rev-product", Score: 0.5, Strategy: "psychic"},
			wantErr:   "unknown strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candidate.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestCandidateMatchesSort(t *testing.T) {
	matches := CandidateMatches{
		{CategoryID: "exp-rent", Score: 0.3, Strategy: StrategyRule},
		{CategoryID: "rev-product", Score: 0.9, Strategy: StrategyRule},
		{CategoryID: "exp-payroll", Score: 0.6, Strategy: StrategyEmbedding},
	}

	matches.Sort()

	assert.Equal(t, "rev-product", matches[0].CategoryID)
	assert.Equal(t, "exp-payroll", matches[1].CategoryID)
	assert.Equal(t, "exp-rent", matches[2].CategoryID)
}

func TestCandidateMatchesSortTieBreaksOnCategoryID(t *testing.T) {
	matches := CandidateMatches{
		{CategoryID: "exp-rent", Score: 0.5, Strategy: StrategyRule},
		{CategoryID: "exp-payroll", Score: 0.5, Strategy: StrategyRule},
	}

	matches.Sort()

	// Ties resolve alphabetically so re-runs produce identical orderings.
	assert.Equal(t, "exp-payroll", matches[0].CategoryID)
	assert.Equal(t, "exp-rent", matches[1].CategoryID)
}

func TestCandidateMatchesTop(t *testing.T) {
	var empty CandidateMatches
	assert.Nil(t, empty.Top())

	matches := CandidateMatches{
		{CategoryID: "exp-rent", Score: 0.3, Strategy: StrategyRule},
		{CategoryID: "rev-product", Score: 0.9, Strategy: StrategyRule},
	}
	top := matches.Top()
	require.NotNil(t, top)
	assert.Equal(t, "rev-product", top.CategoryID)
}

func TestCandidateMatchesTopN(t *testing.T) {
	matches := CandidateMatches{
		{CategoryID: "exp-rent", Score: 0.3, Strategy: StrategyRule},
		{CategoryID: "rev-product", Score: 0.9, Strategy: StrategyRule},
		{CategoryID: "exp-payroll", Score: 0.6, Strategy: StrategyEmbedding},
	}

	assert.Empty(t, matches.TopN(0))
	assert.Len(t, matches.TopN(2), 2)
	assert.Equal(t, "rev-product", matches.TopN(2)[0].CategoryID)
	assert.Len(t, matches.TopN(10), 3)
}

func TestCandidateMatchesTopLeavesReceiverUntouched(t *testing.T) {
	matches := CandidateMatches{
		{CategoryID: "exp-rent", Score: 0.3, Strategy: StrategyRule},
		{CategoryID: "rev-product", Score: 0.9, Strategy: StrategyRule},
		{CategoryID: "exp-payroll", Score: 0.6, Strategy: StrategyEmbedding},
	}

	top := matches.Top()
	require.NotNil(t, top)
	assert.Equal(t, "rev-product", top.CategoryID)
	_ = matches.TopN(2)

	// Strategies may return the same backing slice for every call, so
	// selection must not reorder it under concurrent readers.
	assert.Equal(t, "exp-rent", matches[0].CategoryID)
	assert.Equal(t, "rev-product", matches[1].CategoryID)
	assert.Equal(t, "exp-payroll", matches[2].CategoryID)
}

func TestCandidateMatchesByStrategy(t *testing.T) {
	matches := CandidateMatches{
		{CategoryID: "exp-rent", Score: 0.3, Strategy: StrategyRule},
		{CategoryID: "rev-product", Score: 0.9, Strategy: StrategyEmbedding},
		{CategoryID: "exp-payroll", Score: 0.6, Strategy: StrategyRule},
	}

	rule := matches.ByStrategy(StrategyRule)
	require.Len(t, rule, 2)
	assert.Equal(t, "exp-payroll", rule[0].CategoryID)

	assert.Empty(t, matches.ByStrategy(StrategyLLM))
}
