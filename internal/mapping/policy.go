package mapping

import (
	"log/slog"

	"github.com/ledgersmith/cellflow/internal/model"
)

// AutoPolicy resolves conflicts without an analyst, for unattended batch
// runs. It drives the same resolver contract a human would: duplicates take
// the earliest contributor, low-confidence and validation conflicts are
// acknowledged, and critical conflicts are left open for a human.
type AutoPolicy struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewAutoPolicy creates an automatic resolution policy.
func NewAutoPolicy(resolver *Resolver, logger *slog.Logger) *AutoPolicy {
	return &AutoPolicy{resolver: resolver, logger: logger}
}

// Run applies the policy to every open conflict and returns how many were
// resolved. Conflicts it cannot act on remain open.
func (p *AutoPolicy) Run(session *model.MappingSession, tmpl *model.Template, items []model.LineItem) int {
	resolved := 0

	// Conflicts may be appended during resolution; iterate until stable.
	for {
		progressed := false

		for _, conflict := range session.OpenConflicts() {
			req, ok := p.action(session, conflict)
			if !ok {
				continue
			}

			if err := p.resolver.Apply(session, tmpl, items, req); err != nil {
				p.logger.Warn("automatic resolution failed",
					"conflict_id", conflict.ID,
					"type", conflict.Type,
					"error", err)
				continue
			}
			resolved++
			progressed = true
		}

		if !progressed {
			break
		}
	}

	return resolved
}

// action picks the policy's move for a conflict, or reports that none is
// available.
func (p *AutoPolicy) action(session *model.MappingSession, conflict model.Conflict) (Request, bool) {
	switch conflict.Type {
	case model.ConflictDuplicateTarget:
		winner := earliestContributor(session, conflict.CellAddress)
		if winner == "" {
			return Request{}, false
		}
		return Request{ConflictID: conflict.ID, Kind: ResolutionChoose, LineItemID: winner}, true
	case model.ConflictLowConfidence, model.ConflictValidationFailure:
		return Request{ConflictID: conflict.ID, Kind: ResolutionSkip}, true
	default:
		// missing_required is critical and needs a human or a manual value.
		return Request{}, false
	}
}

// earliestContributor returns the line item id with the lowest source order
// among the cell's contributors.
func earliestContributor(session *model.MappingSession, cellAddress string) string {
	var winner string
	best := -1
	for _, asn := range session.Assignments.ForCell(cellAddress) {
		if asn.LineItemID == "" {
			continue
		}
		if best == -1 || asn.SourceOrder < best {
			best = asn.SourceOrder
			winner = asn.LineItemID
		}
	}
	return winner
}
