package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/cellflow/internal/model"
)

const templateYAML = `
name: balance-sheet
cells:
  - address: B10
    category: asset-cash
    required: true
    aggregation: first
  - address: B11
    category: asset-ar
  - address: B12
    category: asset-current-total
    aggregation: first
    allow_multiple: true
checks:
  - name: current assets subtotal
    target: B12
    sum_of: [B10, B11]
    tolerance: 0.5
`

func TestLoadTemplate(t *testing.T) {
	tmpl, err := LoadTemplate([]byte(templateYAML))
	require.NoError(t, err)

	assert.Equal(t, "balance-sheet", tmpl.Name)
	require.Len(t, tmpl.Cells, 3)

	b10 := tmpl.Cell("B10")
	require.NotNil(t, b10)
	assert.True(t, b10.Required)
	assert.Equal(t, model.AggregationFirst, b10.Aggregation)
	assert.False(t, b10.AllowMultiple)

	// Omitted aggregation defaults to sum.
	b11 := tmpl.Cell("B11")
	require.NotNil(t, b11)
	assert.Equal(t, model.AggregationSum, b11.Aggregation)

	assert.True(t, tmpl.Cell("B12").AllowMultiple)

	require.Len(t, tmpl.Checks, 1)
	assert.Equal(t, "B12", tmpl.Checks[0].TargetCell)
	assert.Equal(t, []string{"B10", "B11"}, tmpl.Checks[0].SumOf)
	assert.InDelta(t, 0.5, tmpl.Checks[0].Tolerance, 0.0001)
}

func TestLoadTemplateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			yaml:    "cells: [unclosed",
			wantErr: "failed to parse template",
		},
		{
			name:    "unknown aggregation",
			yaml:    "cells:\n  - address: B1\n    category: c\n    aggregation: median\n",
			wantErr: "unknown aggregation",
		},
		{
			name:    "duplicate address",
			yaml:    "cells:\n  - address: B1\n    category: c1\n  - address: B1\n    category: c2\n",
			wantErr: "duplicate cell address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTemplate([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadLineItems(t *testing.T) {
	data := `[
		{"source_id": "li-1", "label": "Cash and equivalents", "value": 500.25, "section_hint": "Current assets", "page": 2, "row": 14},
		{"source_id": "li-2", "label": "Accounts receivable", "value": 300}
	]`

	items, err := LoadLineItems([]byte(data))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "li-1", items[0].SourceID)
	assert.Equal(t, "Cash and equivalents", items[0].Label)
	assert.InDelta(t, 500.25, items[0].RawValue, 0.0001)
	assert.Equal(t, "Current assets", items[0].SectionHint)
	assert.Equal(t, model.Coordinates{Page: 2, Row: 14}, items[0].Coordinates)

	assert.Empty(t, items[1].SectionHint)
	assert.Equal(t, model.Coordinates{}, items[1].Coordinates)
}

func TestLoadLineItemsRequiresSourceID(t *testing.T) {
	_, err := LoadLineItems([]byte(`[{"label": "Cash", "value": 1}]`))
	assert.ErrorContains(t, err, "no source_id")
}

func TestLoadLineItemsMalformed(t *testing.T) {
	_, err := LoadLineItems([]byte(`{"not": "a list"}`))
	assert.ErrorContains(t, err, "failed to parse line items")
}
