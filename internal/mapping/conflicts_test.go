package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/cellflow/internal/model"
)

// buildTestSession runs the mapping engine over a small balance-sheet style
// fixture and returns the pieces detection needs.
func buildTestSession(t *testing.T) (*model.MappingSession, *model.Template, []model.LineItem) {
	t.Helper()

	items := []model.LineItem{
		{SourceID: "li-1", Label: "Cash and equivalents", RawValue: 500},
		{SourceID: "li-2", Label: "Cash on hand", RawValue: 450},
		{SourceID: "li-3", Label: "Accounts receivable", RawValue: 300},
	}
	results := []model.ClassificationResult{
		result("li-1", "asset-cash", 0.9),
		result("li-2", "asset-cash", 0.85),
		result("li-3", "asset-ar", 0.9),
	}
	tmpl := &model.Template{
		Name: "balance",
		Cells: []model.TemplateCellSpec{
			{CellAddress: "B10", ExpectedCategoryID: "asset-cash", Aggregation: model.AggregationFirst, Required: true},
			{CellAddress: "B11", ExpectedCategoryID: "asset-ar", Aggregation: model.AggregationSum},
			{CellAddress: "B20", ExpectedCategoryID: "liab-ap", Aggregation: model.AggregationSum, Required: true},
		},
	}

	session := NewEngine(testLogger()).BuildSession(items, results, tmpl)
	return session, tmpl, items
}

func conflictsOfType(conflicts []model.Conflict, ct model.ConflictType) []model.Conflict {
	var out []model.Conflict
	for _, c := range conflicts {
		if c.Type == ct {
			out = append(out, c)
		}
	}
	return out
}

func TestDetectDuplicateTargets(t *testing.T) {
	session, tmpl, items := buildTestSession(t)

	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	dups := conflictsOfType(conflicts, model.ConflictDuplicateTarget)
	require.Len(t, dups, 1)
	assert.Equal(t, "B10", dups[0].CellAddress)
	assert.Equal(t, model.SeverityHigh, dups[0].Severity)
	assert.Equal(t, model.ConflictOpen, dups[0].State)
	assert.Len(t, dups[0].AssignmentIDs, 2)
	// Competing labels are suggested for the analyst.
	assert.Contains(t, dups[0].Suggestions, "Cash and equivalents")
	assert.Contains(t, dups[0].Suggestions, "Cash on hand")
}

func TestDetectDuplicateTargetsAllowMultiple(t *testing.T) {
	session, tmpl, items := buildTestSession(t)
	tmpl.Cells[0].AllowMultiple = true

	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	assert.Empty(t, conflictsOfType(conflicts, model.ConflictDuplicateTarget))
}

func TestDetectDuplicateTargetsSumCellNotFlagged(t *testing.T) {
	_, tmpl, items := buildTestSession(t)
	tmpl.Cells[0].Aggregation = model.AggregationSum

	// Rebuild so the engine keeps both cash contributors active.
	session := NewEngine(testLogger()).BuildSession(items, []model.ClassificationResult{
		result("li-1", "asset-cash", 0.9),
		result("li-2", "asset-cash", 0.85),
		result("li-3", "asset-ar", 0.9),
	}, tmpl)

	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)
	assert.Empty(t, conflictsOfType(conflicts, model.ConflictDuplicateTarget))
}

func TestDetectMissingRequired(t *testing.T) {
	session, tmpl, items := buildTestSession(t)

	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	missing := conflictsOfType(conflicts, model.ConflictMissingRequired)
	require.Len(t, missing, 1)
	assert.Equal(t, "B20", missing[0].CellAddress)
	assert.Equal(t, model.SeverityCritical, missing[0].Severity)
	assert.False(t, missing[0].Skippable())
}

func TestDetectValidationFailure(t *testing.T) {
	items := []model.LineItem{
		{SourceID: "li-1", Label: "Cash", RawValue: 500},
		{SourceID: "li-2", Label: "Receivables", RawValue: 300},
		{SourceID: "li-3", Label: "Total current assets", RawValue: 900},
	}
	results := []model.ClassificationResult{
		result("li-1", "asset-cash", 0.9),
		result("li-2", "asset-ar", 0.9),
		result("li-3", "asset-current-total", 0.9),
	}
	tmpl := &model.Template{
		Cells: []model.TemplateCellSpec{
			{CellAddress: "B10", ExpectedCategoryID: "asset-cash", Aggregation: model.AggregationSum},
			{CellAddress: "B11", ExpectedCategoryID: "asset-ar", Aggregation: model.AggregationSum},
			{CellAddress: "B12", ExpectedCategoryID: "asset-current-total", Aggregation: model.AggregationFirst},
		},
		Checks: []model.CrossCheck{
			{Name: "current assets subtotal", TargetCell: "B12", SumOf: []string{"B10", "B11"}},
		},
	}

	session := NewEngine(testLogger()).BuildSession(items, results, tmpl)
	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	// 500 + 300 = 800, but the subtotal cell says 900.
	failures := conflictsOfType(conflicts, model.ConflictValidationFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, "B12", failures[0].CellAddress)
	assert.Equal(t, model.SeverityMedium, failures[0].Severity)
	assert.Contains(t, failures[0].Suggestions[0], "900.00")
	assert.Contains(t, failures[0].Suggestions[0], "800.00")
}

func TestDetectValidationWithinToleranceNotFlagged(t *testing.T) {
	items := []model.LineItem{
		{SourceID: "li-1", Label: "Cash", RawValue: 500.004},
		{SourceID: "li-2", Label: "Total", RawValue: 500},
	}
	results := []model.ClassificationResult{
		result("li-1", "asset-cash", 0.9),
		result("li-2", "asset-total", 0.9),
	}
	tmpl := &model.Template{
		Cells: []model.TemplateCellSpec{
			{CellAddress: "B10", ExpectedCategoryID: "asset-cash", Aggregation: model.AggregationSum},
			{CellAddress: "B12", ExpectedCategoryID: "asset-total", Aggregation: model.AggregationFirst},
		},
		Checks: []model.CrossCheck{
			{Name: "total", TargetCell: "B12", SumOf: []string{"B10"}},
		},
	}

	session := NewEngine(testLogger()).BuildSession(items, results, tmpl)
	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	assert.Empty(t, conflictsOfType(conflicts, model.ConflictValidationFailure))
}

func TestDetectValidationSkipsIncompleteChecks(t *testing.T) {
	items := []model.LineItem{
		{SourceID: "li-1", Label: "Total", RawValue: 900},
	}
	results := []model.ClassificationResult{
		result("li-1", "asset-total", 0.9),
	}
	tmpl := &model.Template{
		Cells: []model.TemplateCellSpec{
			{CellAddress: "B10", ExpectedCategoryID: "asset-cash", Aggregation: model.AggregationSum},
			{CellAddress: "B12", ExpectedCategoryID: "asset-total", Aggregation: model.AggregationFirst},
		},
		Checks: []model.CrossCheck{
			{Name: "total", TargetCell: "B12", SumOf: []string{"B10"}},
		},
	}

	session := NewEngine(testLogger()).BuildSession(items, results, tmpl)
	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	// The component cell is empty, so the check cannot be evaluated yet.
	assert.Empty(t, conflictsOfType(conflicts, model.ConflictValidationFailure))
}

func TestDetectLowConfidence(t *testing.T) {
	items := []model.LineItem{
		{SourceID: "li-1", Label: "Sundry expenses", RawValue: 10},
		{SourceID: "li-2", Label: "Salaries", RawValue: 100},
		{SourceID: "li-3", Label: "Odd charge", RawValue: 7},
	}
	results := []model.ClassificationResult{
		result("li-1", "exp-other", 0.55),
		result("li-2", "exp-payroll", 0.95),
		result("li-3", "exp-other", 0.3),
	}
	tmpl := &model.Template{
		Cells: []model.TemplateCellSpec{
			{CellAddress: "B15", ExpectedCategoryID: "exp-other", Aggregation: model.AggregationSum},
			{CellAddress: "B16", ExpectedCategoryID: "exp-payroll", Aggregation: model.AggregationSum},
		},
	}

	session := NewEngine(testLogger()).BuildSession(items, results, tmpl)
	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	low := conflictsOfType(conflicts, model.ConflictLowConfidence)
	require.Len(t, low, 2)

	// 0.55 is just under the 0.6 threshold: low severity. 0.3 is more than
	// 0.15 under: medium severity.
	bySeverity := map[model.Severity]int{}
	for _, c := range low {
		bySeverity[c.Severity]++
	}
	assert.Equal(t, 1, bySeverity[model.SeverityLow])
	assert.Equal(t, 1, bySeverity[model.SeverityMedium])
}

func TestDetectLowConfidenceCustomThreshold(t *testing.T) {
	items := []model.LineItem{
		{SourceID: "li-1", Label: "Sundry", RawValue: 10},
	}
	results := []model.ClassificationResult{
		result("li-1", "exp-other", 0.7),
	}
	tmpl := &model.Template{
		Cells: []model.TemplateCellSpec{
			{CellAddress: "B15", ExpectedCategoryID: "exp-other", Aggregation: model.AggregationSum},
		},
	}
	session := NewEngine(testLogger()).BuildSession(items, results, tmpl)

	strict := NewDetector(testLogger(), WithReviewThreshold(0.8))
	conflicts := strict.Detect(session, tmpl, items)
	assert.Len(t, conflictsOfType(conflicts, model.ConflictLowConfidence), 1)

	lenient := NewDetector(testLogger())
	conflicts = lenient.Detect(session, tmpl, items)
	assert.Empty(t, conflictsOfType(conflicts, model.ConflictLowConfidence))
}

func TestDetectCleanSessionNoConflicts(t *testing.T) {
	items := []model.LineItem{
		{SourceID: "li-1", Label: "Salaries", RawValue: 100},
	}
	results := []model.ClassificationResult{
		result("li-1", "exp-payroll", 0.95),
	}
	tmpl := &model.Template{
		Cells: []model.TemplateCellSpec{
			{CellAddress: "B16", ExpectedCategoryID: "exp-payroll", Aggregation: model.AggregationSum, Required: true},
		},
	}

	session := NewEngine(testLogger()).BuildSession(items, results, tmpl)
	conflicts := NewDetector(testLogger()).Detect(session, tmpl, items)

	assert.Empty(t, conflicts)

	session.Conflicts = conflicts
	session.Recompute(tmpl)
	assert.Equal(t, model.StatusReady, session.Status)
}
