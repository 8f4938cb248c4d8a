package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
)

func TestBuildArbiterDegradesWhenEmbeddingServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("embedding.api_key", "test-key")
	viper.Set("embedding.base_url", srv.URL)

	ont, err := ontology.New("v-test", []model.Category{
		{ID: "exp-rent", DisplayName: "Rent Expense", Section: model.SectionExpense, Keywords: []string{"rent"}},
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	arb, err := buildArbiter(context.Background(), ont, logger)

	// A failing exemplar embed drops the embedding strategy; the run keeps
	// going on rule and LLM.
	require.NoError(t, err)
	require.NotNil(t, arb)
}
