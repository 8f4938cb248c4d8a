package embed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
)

// stubEmbedder returns fixed vectors keyed by input text. Unknown text gets
// the fallback vector.
type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	calls    int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

// failingEmbedder always errors.
type failingEmbedder struct{ calls int }

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return nil, fmt.Errorf("embedding service unavailable")
}

func embedOntology(t *testing.T) *ontology.Ontology {
	t.Helper()
	ont, err := ontology.New("v1", []model.Category{
		{
			ID:          "rev-product",
			DisplayName: "Product Revenue",
			Section:     model.SectionRevenue,
			Exemplars:   []string{"Net product sales"},
		},
		{
			ID:          "exp-payroll",
			DisplayName: "Payroll Expense",
			Section:     model.SectionExpense,
			Exemplars:   []string{"Salaries and wages"},
		},
		{
			ID:          "exp-rent",
			DisplayName: "Rent Expense",
			Section:     model.SectionExpense,
			Keywords:    []string{"rent"},
		},
	})
	require.NoError(t, err)
	return ont
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "scale invariant", a: []float32{2, 0}, b: []float32{5, 0}, want: 1},
		{name: "dimension mismatch", a: []float32{1, 0}, b: []float32{1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 0.0001)
		})
	}
}

func TestNewIndex(t *testing.T) {
	embedder := &stubEmbedder{
		vectors: map[string][]float32{
			"Net product sales":  {1, 0, 0},
			"Salaries and wages": {0, 1, 0},
			// exp-rent has no exemplars so its display name is embedded
			"Rent Expense": {0, 0, 1},
		},
	}

	idx, err := NewIndex(context.Background(), embedOntology(t), embedder)
	require.NoError(t, err)
	require.Len(t, idx.vectors, 3)

	results := idx.Search([]float32{0.9, 0.1, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "rev-product", results[0].CategoryID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestNewIndexEmbedderFailure(t *testing.T) {
	_, err := NewIndex(context.Background(), embedOntology(t), &failingEmbedder{})
	assert.ErrorContains(t, err, "failed to embed exemplar")
}

func TestIndexSearchEdgeCases(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0}}
	idx, err := NewIndex(context.Background(), embedOntology(t), embedder)
	require.NoError(t, err)

	assert.Nil(t, idx.Search(nil, 3))
	assert.Nil(t, idx.Search([]float32{1, 0}, 0))

	// topK larger than the catalogue returns everything.
	assert.Len(t, idx.Search([]float32{1, 0}, 10), 3)
}

func TestIndexSearchTieBreaksOnCategoryID(t *testing.T) {
	embedder := &stubEmbedder{fallback: []float32{1, 0}}
	idx, err := NewIndex(context.Background(), embedOntology(t), embedder)
	require.NoError(t, err)

	// All categories share one vector; ordering must still be stable.
	results := idx.Search([]float32{1, 0}, 3)
	require.Len(t, results, 3)
	assert.Equal(t, "exp-payroll", results[0].CategoryID)
	assert.Equal(t, "exp-rent", results[1].CategoryID)
	assert.Equal(t, "rev-product", results[2].CategoryID)
}
