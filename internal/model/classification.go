package model

import "time"

// ClassificationResult is the arbiter's final verdict for one line item.
// Immutable once produced; re-computable given identical inputs and ontology
// version.
type ClassificationResult struct {
	ClassifiedAt    time.Time
	LineItemID      string
	CategoryID      string // empty means unclassified
	WinningStrategy Strategy
	Rationale       string
	OntologyVersion string
	Candidates      CandidateMatches // kept for audit/explainability
	Confidence      float64
}

// Unclassified reports whether no category could be chosen. This is a valid
// terminal state, not an error.
func (r *ClassificationResult) Unclassified() bool {
	return r.CategoryID == ""
}
