package engine

import (
	"context"

	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
)

// ClassifierStrategy proposes candidate categories for a line item. The rule
// and embedding matchers implement it; both are cheap enough to run
// unconditionally. A strategy never errors: no match is an empty list.
type ClassifierStrategy interface {
	Propose(ctx context.Context, item model.LineItem) []model.CandidateMatch
}

// Chooser makes a final multiple-choice decision among merged candidates.
// The LLM classifier implements it. A nil candidate with nil error is an
// explicit "none of the above"; an error means the strategy degraded and the
// arbiter applies its fallback.
type Chooser interface {
	Choose(ctx context.Context, item model.LineItem, candidates model.CandidateMatches, ont *ontology.Ontology) (*model.CandidateMatch, error)
}
