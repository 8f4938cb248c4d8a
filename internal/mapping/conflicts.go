package mapping

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/ledgersmith/cellflow/internal/model"
)

// DefaultReviewThreshold is the confidence below which an assignment's
// classification is flagged for review.
const DefaultReviewThreshold = 0.6

// lowConfidenceMediumGap is how far below the review threshold a confidence
// must fall for the conflict to be medium rather than low severity.
const lowConfidenceMediumGap = 0.15

// Detector inspects an assignment set for structural and semantic problems.
// It is the exclusive creator of Conflict records.
type Detector struct {
	logger          *slog.Logger
	reviewThreshold float64
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithReviewThreshold overrides the low-confidence review threshold.
func WithReviewThreshold(threshold float64) DetectorOption {
	return func(d *Detector) {
		d.reviewThreshold = threshold
	}
}

// NewDetector creates a conflict detector.
func NewDetector(logger *slog.Logger, opts ...DetectorOption) *Detector {
	d := &Detector{
		logger:          logger,
		reviewThreshold: DefaultReviewThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs all four checks over the session's current assignments and
// returns the conflicts found. The checks are independent; a session can
// carry zero or many open conflicts at once.
func (d *Detector) Detect(session *model.MappingSession, tmpl *model.Template, items []model.LineItem) []model.Conflict {
	labels := make(map[string]string, len(items))
	for _, item := range items {
		labels[item.SourceID] = item.Label
	}

	var conflicts []model.Conflict
	conflicts = append(conflicts, d.detectDuplicateTargets(session, tmpl, labels)...)
	conflicts = append(conflicts, d.detectMissingRequired(session, tmpl)...)
	conflicts = append(conflicts, d.detectValidationFailures(session, tmpl)...)
	conflicts = append(conflicts, d.detectLowConfidence(session)...)

	d.logger.Info("conflict detection complete",
		"session_id", session.ID,
		"conflicts", len(conflicts))

	return conflicts
}

// detectDuplicateTargets flags cells with "first" aggregation that received
// more than one contributor, unless the cell spec explicitly allows multiple
// contributors (first silently wins).
func (d *Detector) detectDuplicateTargets(session *model.MappingSession, tmpl *model.Template, labels map[string]string) []model.Conflict {
	var conflicts []model.Conflict

	for _, cell := range tmpl.Cells {
		if cell.Aggregation != model.AggregationFirst || cell.AllowMultiple {
			continue
		}

		// Count every contributor, including those already marked discarded
		// by first-wins precedence: the multiplicity itself is ambiguous.
		contributors := session.Assignments.ForCell(cell.CellAddress)
		undecided := 0
		for _, asn := range contributors {
			if asn.LineItemID != "" {
				undecided++
			}
		}
		if undecided <= 1 {
			continue
		}
		// A previously resolved choice leaves exactly one active contributor.
		if len(contributors.Active()) <= 1 && d.hasResolvedDuplicate(session, cell.CellAddress) {
			continue
		}

		var ids, suggestions []string
		for _, asn := range contributors {
			if asn.LineItemID == "" {
				continue
			}
			ids = append(ids, asn.ID)
			if label, ok := labels[asn.LineItemID]; ok {
				suggestions = append(suggestions, label)
			}
		}

		conflicts = append(conflicts, model.Conflict{
			ID:            uuid.NewString(),
			Type:          model.ConflictDuplicateTarget,
			Severity:      model.SeverityHigh,
			CellAddress:   cell.CellAddress,
			AssignmentIDs: ids,
			Suggestions:   suggestions,
			State:         model.ConflictOpen,
		})
	}

	return conflicts
}

// hasResolvedDuplicate reports whether the session already carries a
// resolved duplicate_target conflict for the cell.
func (d *Detector) hasResolvedDuplicate(session *model.MappingSession, cellAddress string) bool {
	for _, c := range session.Conflicts {
		if c.Type == model.ConflictDuplicateTarget && c.CellAddress == cellAddress && c.State == model.ConflictResolved {
			return true
		}
	}
	return false
}

// detectMissingRequired flags required cells with zero active contributors.
func (d *Detector) detectMissingRequired(session *model.MappingSession, tmpl *model.Template) []model.Conflict {
	var conflicts []model.Conflict

	for _, cell := range tmpl.RequiredCells() {
		if len(session.Assignments.ForCell(cell.CellAddress).Active()) > 0 {
			continue
		}

		conflicts = append(conflicts, model.Conflict{
			ID:          uuid.NewString(),
			Type:        model.ConflictMissingRequired,
			Severity:    model.SeverityCritical,
			CellAddress: cell.CellAddress,
			Suggestions: []string{
				fmt.Sprintf("no line item classified to %s; map one manually or enter the cell value directly", cell.ExpectedCategoryID),
			},
			State: model.ConflictOpen,
		})
	}

	return conflicts
}

// detectValidationFailures evaluates the template's declared cross-checks,
// e.g. assets equalling liabilities plus equity, or a subtotal cell agreeing
// with the sum of its constituent cells within tolerance.
func (d *Detector) detectValidationFailures(session *model.MappingSession, tmpl *model.Template) []model.Conflict {
	var conflicts []model.Conflict

	for _, check := range tmpl.Checks {
		targetSpec := tmpl.Cell(check.TargetCell)
		if targetSpec == nil {
			continue
		}

		target, ok := session.Assignments.CellValue(check.TargetCell, targetSpec.Aggregation)
		if !ok {
			// An unfilled target is the missing_required check's concern.
			continue
		}

		var sum float64
		complete := true
		for _, addr := range check.SumOf {
			spec := tmpl.Cell(addr)
			if spec == nil {
				complete = false
				break
			}
			v, filled := session.Assignments.CellValue(addr, spec.Aggregation)
			if !filled {
				complete = false
				break
			}
			sum += v
		}
		if !complete {
			continue
		}

		tolerance := check.Tolerance
		if tolerance <= 0 {
			tolerance = 0.01
		}

		if math.Abs(target-sum) <= tolerance {
			continue
		}

		conflicts = append(conflicts, model.Conflict{
			ID:          uuid.NewString(),
			Type:        model.ConflictValidationFailure,
			Severity:    model.SeverityMedium,
			CellAddress: check.TargetCell,
			Suggestions: []string{
				fmt.Sprintf("%s: cell %s totals %.2f but its components total %.2f (tolerance %.2f)",
					check.Name, check.TargetCell, target, sum, tolerance),
			},
			State: model.ConflictOpen,
		})
	}

	return conflicts
}

// detectLowConfidence flags active assignments whose underlying
// classification confidence is below the review threshold.
func (d *Detector) detectLowConfidence(session *model.MappingSession) []model.Conflict {
	confidence := make(map[string]float64, len(session.Results))
	for _, r := range session.Results {
		confidence[r.LineItemID] = r.Confidence
	}

	var conflicts []model.Conflict
	for _, asn := range session.Assignments.Active() {
		if asn.LineItemID == "" {
			// Manual entries bypass classification entirely.
			continue
		}
		conf, ok := confidence[asn.LineItemID]
		if !ok || conf >= d.reviewThreshold {
			continue
		}

		severity := model.SeverityLow
		if d.reviewThreshold-conf >= lowConfidenceMediumGap {
			severity = model.SeverityMedium
		}

		conflicts = append(conflicts, model.Conflict{
			ID:            uuid.NewString(),
			Type:          model.ConflictLowConfidence,
			Severity:      severity,
			CellAddress:   asn.CellAddress,
			AssignmentIDs: []string{asn.ID},
			Suggestions: []string{
				fmt.Sprintf("classification confidence %.2f is below the review threshold %.2f", conf, d.reviewThreshold),
			},
			State: model.ConflictOpen,
		})
	}

	return conflicts
}
