package mapping

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgersmith/cellflow/internal/common"
	"github.com/ledgersmith/cellflow/internal/model"
)

// ResolutionKind names an action an analyst (or automatic policy) can take
// on an open conflict.
type ResolutionKind string

// Resolution kinds.
const (
	// ResolutionChoose accepts one competing line item for the conflict's
	// cell; the mapping engine re-runs for that cell and detection
	// re-validates it.
	ResolutionChoose ResolutionKind = "choose"
	// ResolutionSetValue enters the cell value directly, bypassing
	// classification for that one cell.
	ResolutionSetValue ResolutionKind = "set_value"
	// ResolutionSkip acknowledges the conflict without remediation. Valid
	// only for non-critical severities.
	ResolutionSkip ResolutionKind = "skip"
)

// Request is one resolution action against a session.
type Request struct {
	ConflictID string
	Kind       ResolutionKind
	// LineItemID designates the winning contributor for choose actions.
	LineItemID string
	// Value is the manually entered cell value for set_value actions.
	Value float64
}

// Resolver drives conflicts from open to resolved. It is the only writer of
// Conflict state and resolution. Callers must serialize resolution actions
// on a given session; reads may be concurrent.
type Resolver struct {
	engine   *Engine
	detector *Detector
	logger   *slog.Logger
}

// NewResolver creates a resolver that re-runs the given engine and detector
// slices after remediations.
func NewResolver(engine *Engine, detector *Detector, logger *slog.Logger) *Resolver {
	return &Resolver{engine: engine, detector: detector, logger: logger}
}

// Apply validates and executes one resolution action. Invalid requests are
// rejected with a specific reason and no partial mutation. After a
// successful action the session status is recomputed.
func (r *Resolver) Apply(session *model.MappingSession, tmpl *model.Template, items []model.LineItem, req Request) error {
	conflict := session.FindConflict(req.ConflictID)
	if conflict == nil {
		return fmt.Errorf("%w: conflict %s", common.ErrNotFound, req.ConflictID)
	}
	if conflict.State != model.ConflictOpen {
		return fmt.Errorf("%w: conflict %s is %s", common.ErrConflictNotOpen, conflict.ID, conflict.State)
	}

	switch req.Kind {
	case ResolutionChoose:
		return r.applyChoose(session, tmpl, items, conflict, req)
	case ResolutionSetValue:
		return r.applySetValue(session, tmpl, conflict, req)
	case ResolutionSkip:
		return r.applySkip(session, tmpl, conflict)
	default:
		return fmt.Errorf("%w: unknown resolution kind %q", common.ErrActionNotAllowed, req.Kind)
	}
}

func (r *Resolver) applyChoose(session *model.MappingSession, tmpl *model.Template, items []model.LineItem, conflict *model.Conflict, req Request) error {
	if conflict.Type != model.ConflictDuplicateTarget {
		return fmt.Errorf("%w: choose applies only to duplicate_target conflicts", common.ErrActionNotAllowed)
	}
	if req.LineItemID == "" {
		return fmt.Errorf("%w: choose requires a line item id", common.ErrActionNotAllowed)
	}

	// The chosen item must be one of the competitors.
	var found bool
	for _, asn := range session.Assignments.ForCell(conflict.CellAddress) {
		if asn.LineItemID == req.LineItemID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: line item %s does not contribute to cell %s",
			common.ErrActionNotAllowed, req.LineItemID, conflict.CellAddress)
	}

	r.engine.RemapCell(session, conflict.CellAddress, req.LineItemID)

	if err := conflict.Resolve(fmt.Sprintf("chose line item %s for cell %s", req.LineItemID, conflict.CellAddress)); err != nil {
		return err
	}

	r.redetect(session, tmpl, items)
	session.Recompute(tmpl)

	r.logger.Info("duplicate target resolved",
		"session_id", session.ID,
		"conflict_id", conflict.ID,
		"cell", conflict.CellAddress,
		"chosen", req.LineItemID)

	return nil
}

func (r *Resolver) applySetValue(session *model.MappingSession, tmpl *model.Template, conflict *model.Conflict, req Request) error {
	if tmpl.Cell(conflict.CellAddress) == nil {
		return fmt.Errorf("%w: conflict %s has no cell to set", common.ErrActionNotAllowed, conflict.ID)
	}

	// Manual entry supersedes every automatic contributor for the cell.
	for i := range session.Assignments {
		if session.Assignments[i].CellAddress == conflict.CellAddress {
			session.Assignments[i].Discarded = true
		}
	}

	session.Assignments = append(session.Assignments, model.Assignment{
		ID:          uuid.NewString(),
		SourceID:    "manual",
		CellAddress: conflict.CellAddress,
		Value:       req.Value,
	})

	if err := conflict.Resolve(fmt.Sprintf("cell %s set manually to %.2f", conflict.CellAddress, req.Value)); err != nil {
		return err
	}

	session.Recompute(tmpl)

	r.logger.Info("cell value entered manually",
		"session_id", session.ID,
		"conflict_id", conflict.ID,
		"cell", conflict.CellAddress,
		"value", req.Value)

	return nil
}

func (r *Resolver) applySkip(session *model.MappingSession, tmpl *model.Template, conflict *model.Conflict) error {
	if !conflict.Skippable() {
		return fmt.Errorf("%w: %s conflicts cannot be skipped", common.ErrActionNotAllowed, conflict.Severity)
	}

	if err := conflict.Resolve("acknowledged without remediation"); err != nil {
		return err
	}

	session.Recompute(tmpl)

	r.logger.Info("conflict acknowledged",
		"session_id", session.ID,
		"conflict_id", conflict.ID,
		"type", conflict.Type)

	return nil
}

// redetect re-runs detection after a remediation and appends any newly
// found conflicts. A structurally similar conflict reappearing gets a fresh
// id; resolved conflicts stay resolved.
func (r *Resolver) redetect(session *model.MappingSession, tmpl *model.Template, items []model.LineItem) {
	fresh := r.detector.Detect(session, tmpl, items)

	// Suppress re-detections of conflicts the session already tracks, open
	// or resolved: an acknowledged conflict stays acknowledged.
	known := make(map[string]bool, len(session.Conflicts))
	for _, c := range session.Conflicts {
		known[conflictKey(c)] = true
	}

	for _, c := range fresh {
		if known[conflictKey(c)] {
			continue
		}
		session.Conflicts = append(session.Conflicts, c)
	}
}

// conflictKey identifies a conflict by its structural identity rather than
// its id, so re-detection does not pile up duplicates of still-open ones.
func conflictKey(c model.Conflict) string {
	return string(c.Type) + "|" + c.CellAddress
}
