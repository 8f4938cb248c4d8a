package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersmith/cellflow/internal/embed"
	"github.com/ledgersmith/cellflow/internal/engine"
	"github.com/ledgersmith/cellflow/internal/llm"
	"github.com/ledgersmith/cellflow/internal/mapping"
	"github.com/ledgersmith/cellflow/internal/match"
	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
	"github.com/ledgersmith/cellflow/internal/service"
)

func mapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Classify line items and map them into a template",
		Long: `Run the full pipeline: classify every extracted line item against the
category ontology, place the classified values into the template's cells,
and detect conflicts that need review.

Examples:
  cellflow map --items items.json --template balance.yaml --ontology gaap.yaml
  cellflow map --items items.json --template balance.yaml --ontology gaap.yaml --auto`,
		RunE: runMap,
	}

	cmd.Flags().String("items", "", "JSON file of extracted line items (required)")
	cmd.Flags().String("template", "", "YAML template cell schema (required)")
	cmd.Flags().String("ontology", "", "YAML category ontology (required)")
	cmd.Flags().Bool("auto", false, "Resolve non-critical conflicts automatically")
	_ = cmd.MarkFlagRequired("items")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("ontology")

	_ = viper.BindPFlag("map.items", cmd.Flags().Lookup("items"))
	_ = viper.BindPFlag("map.template", cmd.Flags().Lookup("template"))
	_ = viper.BindPFlag("map.ontology", cmd.Flags().Lookup("ontology"))
	_ = viper.BindPFlag("map.auto", cmd.Flags().Lookup("auto"))

	return cmd
}

func runMap(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	ont, err := ontology.LoadFile(viper.GetString("map.ontology"))
	if err != nil {
		return err
	}

	tmpl, err := mapping.LoadTemplateFile(viper.GetString("map.template"))
	if err != nil {
		return err
	}
	if err := validateTemplateCategories(tmpl, ont); err != nil {
		return err
	}

	items, err := mapping.LoadLineItemsFile(viper.GetString("map.items"))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no line items to map")
	}

	arb, err := buildArbiter(ctx, ont, logger)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(items)), "classifying")
	results, stats := arb.ClassifyAll(ctx, items, func() { _ = bar.Add(1) })
	_ = bar.Finish()

	mapper := mapping.NewEngine(logger)
	session := mapper.BuildSession(items, results, tmpl)

	detector := mapping.NewDetector(logger,
		mapping.WithReviewThreshold(viperFloat("conflicts.review_threshold", mapping.DefaultReviewThreshold)))
	session.Conflicts = detector.Detect(session, tmpl, items)
	session.Recompute(tmpl)

	if viper.GetBool("map.auto") {
		resolver := mapping.NewResolver(mapper, detector, logger)
		policy := mapping.NewAutoPolicy(resolver, logger)
		resolved := policy.Run(session, tmpl, items)
		logger.Info("automatic policy finished", "resolved", resolved)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if err := store.SaveSession(ctx, session); err != nil {
		return err
	}

	printMapSummary(cmd, session, stats)
	return nil
}

// buildArbiter wires the classification strategies from configuration.
// Missing embedding or LLM credentials degrade the pipeline rather than
// fail it: classification proceeds on the remaining strategies.
func buildArbiter(ctx context.Context, ont *ontology.Ontology, logger *slog.Logger) (*engine.Arbiter, error) {
	rule := match.NewMatcher(ont)

	var embedding engine.ClassifierStrategy
	if key := viper.GetString("embedding.api_key"); key != "" {
		embedder, err := embed.NewHTTPEmbedder(embed.Config{
			BaseURL: viper.GetString("embedding.base_url"),
			APIKey:  key,
			Model:   viper.GetString("embedding.model"),
		})
		if err != nil {
			return nil, err
		}
		index, err := embed.NewIndex(ctx, ont, embedder)
		if err != nil {
			// An unreachable embedding service degrades the pipeline to the
			// remaining strategies; it never aborts the run.
			logger.Warn("embedding index unavailable, skipping embedding strategy", "error", err)
		} else {
			embedding = embed.NewMatcher(embedder, index, logger)
		}
	} else {
		logger.Warn("no embedding API key configured, skipping embedding strategy")
	}

	var chooser engine.Chooser
	if provider := viper.GetString("llm.provider"); provider != "" {
		classifier, err := llm.NewClassifier(llm.Config{
			Provider:   provider,
			APIKey:     viper.GetString("llm.api_key"),
			Model:      viper.GetString("llm.model"),
			MaxRetries: viper.GetInt("llm.max_retries"),
			RetryDelay: viper.GetDuration("llm.retry_delay"),
			RateLimit:  viper.GetInt("llm.rate_limit"),
		}, logger)
		if err != nil {
			return nil, err
		}
		chooser = classifier
	} else {
		logger.Warn("no LLM provider configured, ambiguous items will stay unclassified")
	}

	cfg := engine.DefaultConfig()
	if viper.IsSet("engine.confident_threshold") {
		cfg.ConfidentThreshold = viper.GetFloat64("engine.confident_threshold")
	}
	if viper.IsSet("engine.workers") {
		cfg.Workers = viper.GetInt("engine.workers")
	}

	return engine.NewWithConfig(ont, rule, embedding, chooser, logger, cfg), nil
}

func viperFloat(key string, fallback float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return fallback
}

// validateTemplateCategories ensures every cell references a category the
// ontology knows.
func validateTemplateCategories(tmpl *model.Template, ont *ontology.Ontology) error {
	for _, cell := range tmpl.Cells {
		if ont.Category(cell.ExpectedCategoryID) == nil {
			return fmt.Errorf("template cell %s references unknown category %q",
				cell.CellAddress, cell.ExpectedCategoryID)
		}
	}
	return nil
}

func printMapSummary(cmd *cobra.Command, session *model.MappingSession, stats service.ClassifierStats) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, titleStyle.Render("Mapping Session"))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Session:"), session.ID)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Status:"), statusLabel(session.Status))
	fmt.Fprintf(out, "%s %d classified, %d unclassified (of %d items)\n",
		labelStyle.Render("Results:"), stats.Classified, stats.Unclassified, stats.TotalItems)
	if stats.LLMCalls > 0 {
		fmt.Fprintf(out, "%s %d\n", labelStyle.Render("LLM calls:"), stats.LLMCalls)
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Elapsed:"), stats.Duration.Round(time.Millisecond))

	open := session.OpenConflicts()
	if len(open) == 0 {
		fmt.Fprintln(out, readyStyle.Render("No open conflicts."))
		return
	}
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Open conflicts:"), len(open))
	for _, c := range open {
		fmt.Fprintf(out, "  %s  %-8s %s\n", severityLabel(c.Severity), c.CellAddress, c.Type)
	}
	fmt.Fprintf(out, "\nRun %s to work through them.\n",
		labelStyle.Render("cellflow conflicts --session "+session.ID))
}
