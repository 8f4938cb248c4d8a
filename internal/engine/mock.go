package engine

import (
	"context"
	"sync/atomic"

	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
)

// StaticStrategy returns canned candidates per label. It substitutes for the
// rule or embedding matcher in tests and dry runs.
type StaticStrategy struct {
	// Candidates maps a line-item label to the candidates to return.
	Candidates map[string][]model.CandidateMatch
}

// Propose returns the canned candidates for the item's label.
func (s *StaticStrategy) Propose(_ context.Context, item model.LineItem) []model.CandidateMatch {
	return s.Candidates[item.Label]
}

// MockChooser is a deterministic Chooser stand-in for the language model.
type MockChooser struct {
	// Choice maps a label to the choice to return. Absent labels return
	// none-of-the-above.
	Choice map[string]*model.CandidateMatch
	// Err, when set, is returned for every call to simulate a degraded
	// external service.
	Err   error
	calls atomic.Int64
}

// Choose returns the canned choice for the item's label.
func (m *MockChooser) Choose(_ context.Context, item model.LineItem, _ model.CandidateMatches, _ *ontology.Ontology) (*model.CandidateMatch, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Choice[item.Label], nil
}

// Calls reports how many times the chooser was consulted.
func (m *MockChooser) Calls() int {
	return int(m.calls.Load())
}
