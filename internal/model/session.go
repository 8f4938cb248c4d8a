package model

import "time"

// SessionStatus is the review state of a mapping session.
type SessionStatus string

// Session status constants.
const (
	StatusPendingReview SessionStatus = "pending_review"
	StatusReady         SessionStatus = "ready"
)

// MappingSession is the aggregate root for one document's classification and
// mapping run.
type MappingSession struct {
	CreatedAt       time.Time
	ID              string
	OntologyVersion string
	TemplateName    string
	Status          SessionStatus
	Results         []ClassificationResult
	Assignments     Assignments
	Conflicts       []Conflict
	// Unmapped holds line item ids whose classification came back empty.
	// They are surfaced for manual mapping and do not raise conflicts.
	Unmapped []string
}

// OpenConflicts returns the conflicts still awaiting resolution.
func (s *MappingSession) OpenConflicts() []Conflict {
	var open []Conflict
	for _, c := range s.Conflicts {
		if c.State == ConflictOpen {
			open = append(open, c)
		}
	}
	return open
}

// FindConflict returns a pointer to the conflict with the given id, or nil.
func (s *MappingSession) FindConflict(id string) *Conflict {
	for i := range s.Conflicts {
		if s.Conflicts[i].ID == id {
			return &s.Conflicts[i]
		}
	}
	return nil
}

// Recompute updates Status: ready exactly when every conflict is resolved and
// every required cell has at least one active assignment.
func (s *MappingSession) Recompute(tmpl *Template) {
	if len(s.OpenConflicts()) > 0 {
		s.Status = StatusPendingReview
		return
	}

	for _, cell := range tmpl.RequiredCells() {
		if len(s.Assignments.ForCell(cell.CellAddress).Active()) == 0 {
			s.Status = StatusPendingReview
			return
		}
	}

	s.Status = StatusReady
}

// ExportableAssignments returns the active assignments once the session is
// ready. Nil is returned while review is still pending.
func (s *MappingSession) ExportableAssignments() Assignments {
	if s.Status != StatusReady {
		return nil
	}
	return s.Assignments.Active()
}
