package ontology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/cellflow/internal/model"
)

const catalogueYAML = `
version: "2024.1"
categories:
  - id: revenue
    display_name: Revenue
    section: revenue
  - id: rev-product
    display_name: Product Revenue
    parent_id: revenue
    section: revenue
    keywords:
      - product sales
      - merchandise
    exemplars:
      - Net product sales
  - id: exp-rent
    display_name: Rent Expense
    section: expense
    keywords:
      - rent
      - lease
`

func TestLoad(t *testing.T) {
	ont, err := Load([]byte(catalogueYAML))
	require.NoError(t, err)

	assert.Equal(t, "2024.1", ont.Version())
	assert.Equal(t, 3, ont.Len())

	cat := ont.Category("rev-product")
	require.NotNil(t, cat)
	assert.Equal(t, "revenue", cat.ParentID)
	assert.Equal(t, model.SectionRevenue, cat.Section)
	assert.Equal(t, []string{"product sales", "merchandise"}, cat.Keywords)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load([]byte("categories: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse ontology")
}

func TestLoadRejectsInvalidCatalogue(t *testing.T) {
	_, err := Load([]byte(`
version: v1
categories:
  - id: exp-rent
    display_name: Rent Expense
    section: overhead
    keywords: [rent]
`))
	assert.ErrorContains(t, err, "invalid ontology")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/catalogue.yaml")
	assert.ErrorContains(t, err, "failed to read ontology file")
}
