package model

// Assignment binds a classified line item's value to a specific template
// cell. Created exclusively by the mapping engine.
type Assignment struct {
	ID          string
	LineItemID  string
	SourceID    string
	CellAddress string
	Value       float64
	// SourceOrder preserves the line item's position in the document, used
	// for "first" aggregation precedence.
	SourceOrder int
	// Discarded marks assignments computed but excluded from the cell total
	// (later contributors under "first" aggregation, or losers of a resolved
	// duplicate). Kept for audit, never exported.
	Discarded   bool
	Coordinates Coordinates
}

// Assignments is a slice of Assignment with cell-level helpers.
type Assignments []Assignment

// ForCell returns the assignments targeting the given cell address.
func (a Assignments) ForCell(address string) Assignments {
	var result Assignments
	for _, asn := range a {
		if asn.CellAddress == address {
			result = append(result, asn)
		}
	}
	return result
}

// Active returns the non-discarded assignments.
func (a Assignments) Active() Assignments {
	var result Assignments
	for _, asn := range a {
		if !asn.Discarded {
			result = append(result, asn)
		}
	}
	return result
}

// CellValue computes the combined value of the active assignments for a cell
// under the given aggregation policy. The second return is false when no
// active assignment targets the cell.
func (a Assignments) CellValue(address string, policy Aggregation) (float64, bool) {
	active := a.ForCell(address).Active()
	if len(active) == 0 {
		return 0, false
	}

	switch policy {
	case AggregationSum:
		var total float64
		for _, asn := range active {
			total += asn.Value
		}
		return total, true
	case AggregationAverage:
		var total float64
		for _, asn := range active {
			total += asn.Value
		}
		return total / float64(len(active)), true
	case AggregationFirst:
		earliest := active[0]
		for _, asn := range active[1:] {
			if asn.SourceOrder < earliest.SourceOrder {
				earliest = asn
			}
		}
		return earliest.Value, true
	}

	return 0, false
}
