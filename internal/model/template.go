package model

import "fmt"

// Aggregation governs how multiple line items contributing to one cell are
// combined.
type Aggregation string

// Aggregation policy constants.
const (
	AggregationSum     Aggregation = "sum"
	AggregationAverage Aggregation = "average"
	AggregationFirst   Aggregation = "first"
)

// TemplateCellSpec describes one addressable cell of the target template.
// Supplied by the template collaborator; read-only here.
type TemplateCellSpec struct {
	CellAddress        string
	ExpectedCategoryID string
	Aggregation        Aggregation
	Required           bool
	// AllowMultiple controls whether a "first" cell silently accepts several
	// contributors (first wins) or raises a duplicate_target conflict when
	// more than one line item maps to it. Defaults to false: conflicts are
	// raised for analyst awareness.
	AllowMultiple bool
}

// Validate ensures the cell spec is well formed.
func (s *TemplateCellSpec) Validate() error {
	if s.CellAddress == "" {
		return fmt.Errorf("cell address is required")
	}
	if s.ExpectedCategoryID == "" {
		return fmt.Errorf("cell %s: expected category id is required", s.CellAddress)
	}
	switch s.Aggregation {
	case AggregationSum, AggregationAverage, AggregationFirst:
	default:
		return fmt.Errorf("cell %s: unknown aggregation %q", s.CellAddress, s.Aggregation)
	}
	return nil
}

// CrossCheck declares an arithmetic relation that must hold between cells,
// e.g. a subtotal cell equalling the sum of its constituents, or assets
// equalling liabilities plus equity.
type CrossCheck struct {
	Name       string
	TargetCell string
	SumOf      []string
	Tolerance  float64
}

// Template is the full cell schema for one target spreadsheet template.
type Template struct {
	Name   string
	Cells  []TemplateCellSpec
	Checks []CrossCheck
}

// Cell returns the spec for the given address, or nil if not declared.
func (t *Template) Cell(address string) *TemplateCellSpec {
	for i := range t.Cells {
		if t.Cells[i].CellAddress == address {
			return &t.Cells[i]
		}
	}
	return nil
}

// RequiredCells returns the specs of all required cells.
func (t *Template) RequiredCells() []TemplateCellSpec {
	var required []TemplateCellSpec
	for _, c := range t.Cells {
		if c.Required {
			required = append(required, c)
		}
	}
	return required
}

// Validate ensures every cell spec is well formed and addresses are unique.
func (t *Template) Validate() error {
	seen := make(map[string]bool)
	for i := range t.Cells {
		if err := t.Cells[i].Validate(); err != nil {
			return err
		}
		if seen[t.Cells[i].CellAddress] {
			return fmt.Errorf("duplicate cell address %q", t.Cells[i].CellAddress)
		}
		seen[t.Cells[i].CellAddress] = true
	}
	for _, check := range t.Checks {
		if check.TargetCell == "" || len(check.SumOf) == 0 {
			return fmt.Errorf("cross-check %q must name a target cell and at least one component", check.Name)
		}
	}
	return nil
}
