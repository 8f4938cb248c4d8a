package model

import "fmt"

// ConflictType classifies a detected mapping problem.
type ConflictType string

// Conflict type constants.
const (
	ConflictDuplicateTarget   ConflictType = "duplicate_target"
	ConflictMissingRequired   ConflictType = "missing_required"
	ConflictValidationFailure ConflictType = "validation_failure"
	ConflictLowConfidence     ConflictType = "low_confidence"
)

// Severity ranks how strongly a conflict blocks export.
type Severity string

// Severity constants.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ConflictState tracks the one-way resolution lifecycle of a conflict.
type ConflictState string

// Conflict state constants.
const (
	ConflictOpen     ConflictState = "open"
	ConflictResolved ConflictState = "resolved"
)

// Conflict is a detected problem in the assignment set requiring resolution
// before export. Created by the detector; state and resolution are written
// only by the resolver.
type Conflict struct {
	ID            string
	Type          ConflictType
	Severity      Severity
	CellAddress   string
	AssignmentIDs []string
	Suggestions   []string
	State         ConflictState
	Resolution    string
}

// Skippable reports whether the conflict may be acknowledged without a
// remediation. Critical conflicts must be remediated.
func (c *Conflict) Skippable() bool {
	return c.Severity != SeverityCritical
}

// Resolve transitions the conflict from open to resolved. The transition is
// one-way; resolving an already-resolved conflict is an error.
func (c *Conflict) Resolve(resolution string) error {
	if c.State != ConflictOpen {
		return fmt.Errorf("conflict %s is already %s", c.ID, c.State)
	}
	c.State = ConflictResolved
	c.Resolution = resolution
	return nil
}
