// Package mapping places classified line items into template cells, detects
// conflicts in the resulting assignment set, and drives their resolution.
package mapping

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ledgersmith/cellflow/internal/model"
)

// Engine builds assignments from classification results and a template's
// cell schema. It is the exclusive creator of Assignment records.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a mapping engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// BuildSession maps the classification results onto the template and returns
// a new session in pending_review status. Conflict detection runs separately
// so resolution can re-detect on the same session.
func (e *Engine) BuildSession(items []model.LineItem, results []model.ClassificationResult, tmpl *model.Template) *model.MappingSession {
	session := &model.MappingSession{
		CreatedAt:    time.Now(),
		ID:           uuid.NewString(),
		TemplateName: tmpl.Name,
		Status:       model.StatusPendingReview,
		Results:      results,
	}
	if len(results) > 0 {
		session.OntologyVersion = results[0].OntologyVersion
	}

	byItem := make(map[string]model.LineItem, len(items))
	order := make(map[string]int, len(items))
	for i, item := range items {
		byItem[item.SourceID] = item
		order[item.SourceID] = i
	}

	// Unclassified items are excluded from automatic assignment and surfaced
	// separately; they do not raise conflicts by themselves.
	byCategory := make(map[string][]model.ClassificationResult)
	for _, r := range results {
		if r.Unclassified() {
			session.Unmapped = append(session.Unmapped, r.LineItemID)
			continue
		}
		byCategory[r.CategoryID] = append(byCategory[r.CategoryID], r)
	}

	for _, cell := range tmpl.Cells {
		contributors := byCategory[cell.ExpectedCategoryID]
		if len(contributors) == 0 {
			continue
		}

		sort.SliceStable(contributors, func(i, j int) bool {
			return order[contributors[i].LineItemID] < order[contributors[j].LineItemID]
		})

		for i, r := range contributors {
			item, ok := byItem[r.LineItemID]
			if !ok {
				e.logger.Warn("classification result references unknown line item",
					"line_item_id", r.LineItemID,
					"cell", cell.CellAddress)
				continue
			}

			// Under "first" aggregation only the earliest contributor counts;
			// the rest are computed but kept discarded for audit.
			discarded := cell.Aggregation == model.AggregationFirst && i > 0

			session.Assignments = append(session.Assignments, model.Assignment{
				ID:          uuid.NewString(),
				LineItemID:  item.SourceID,
				SourceID:    item.SourceID,
				CellAddress: cell.CellAddress,
				Value:       item.RawValue,
				SourceOrder: order[item.SourceID],
				Discarded:   discarded,
				Coordinates: item.Coordinates,
			})
		}
	}

	e.logger.Info("mapping session built",
		"session_id", session.ID,
		"assignments", len(session.Assignments),
		"unmapped", len(session.Unmapped))

	return session
}

// RemapCell rebuilds the assignments of a single cell, preserving the rest
// of the session. keepLineItemID, when non-empty, designates the one
// contributor that stays active; all other contributors are discarded. Used
// by the resolver to apply a duplicate disambiguation.
func (e *Engine) RemapCell(session *model.MappingSession, cellAddress, keepLineItemID string) {
	for i := range session.Assignments {
		asn := &session.Assignments[i]
		if asn.CellAddress != cellAddress || asn.LineItemID == "" {
			continue
		}
		asn.Discarded = asn.LineItemID != keepLineItemID
	}
}
