// Package engine implements the hybrid classification arbiter. Each line
// item is run through the rule and embedding strategies unconditionally; the
// language model is consulted only when their combined answer is missing,
// weak, or contradictory.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
	"github.com/ledgersmith/cellflow/internal/service"
)

// Config holds configuration options for the arbiter.
type Config struct {
	// ConfidentThreshold is the minimum top score at which the rule and
	// embedding answer stands without consulting the language model.
	ConfidentThreshold float64
	// Workers bounds concurrent line-item classification.
	Workers int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ConfidentThreshold: 0.75,
		Workers:            4,
	}
}

// Arbiter orchestrates the classification strategies per line item and
// merges their outputs into one ClassificationResult.
type Arbiter struct {
	ont       *ontology.Ontology
	rule      ClassifierStrategy
	embedding ClassifierStrategy
	chooser   Chooser
	logger    *slog.Logger
	config    Config
}

// New creates an arbiter with the default configuration. chooser may be nil
// when no language model is configured; ambiguous items then fall back to
// the best available candidate.
func New(ont *ontology.Ontology, rule, embedding ClassifierStrategy, chooser Chooser, logger *slog.Logger) *Arbiter {
	return NewWithConfig(ont, rule, embedding, chooser, logger, DefaultConfig())
}

// NewWithConfig creates an arbiter with custom configuration.
func NewWithConfig(ont *ontology.Ontology, rule, embedding ClassifierStrategy, chooser Chooser, logger *slog.Logger, config Config) *Arbiter {
	if config.ConfidentThreshold <= 0 {
		config.ConfidentThreshold = 0.75
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &Arbiter{
		ont:       ont,
		rule:      rule,
		embedding: embedding,
		chooser:   chooser,
		logger:    logger,
		config:    config,
	}
}

// ClassifyAll classifies the items concurrently and returns results in input
// order. Independent items share only the read-only ontology and the
// embedding cache, so a bounded worker pool is safe. onItem, when non-nil,
// is called once per finished item for progress reporting.
func (a *Arbiter) ClassifyAll(ctx context.Context, items []model.LineItem, onItem func()) ([]model.ClassificationResult, service.ClassifierStats) {
	start := time.Now()
	results := make([]model.ClassificationResult, len(items))

	var llmCalls atomic.Int64
	sem := make(chan struct{}, a.config.Workers)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(idx int, li model.LineItem) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = a.unclassified(li, fmt.Sprintf("classification canceled: %v", ctx.Err()))
				return
			}

			results[idx] = a.classifyOne(ctx, li, &llmCalls)
			if onItem != nil {
				onItem()
			}
		}(i, item)
	}

	wg.Wait()

	stats := service.ClassifierStats{
		TotalItems: len(items),
		LLMCalls:   int(llmCalls.Load()),
		Duration:   time.Since(start),
	}
	for _, r := range results {
		if r.Unclassified() {
			stats.Unclassified++
		} else {
			stats.Classified++
		}
	}

	a.logger.Info("classification run complete",
		"total", stats.TotalItems,
		"classified", stats.Classified,
		"unclassified", stats.Unclassified,
		"llm_calls", stats.LLMCalls,
		"duration", stats.Duration)

	return results, stats
}

// Classify runs the full strategy cascade for a single line item.
func (a *Arbiter) Classify(ctx context.Context, item model.LineItem) model.ClassificationResult {
	var calls atomic.Int64
	return a.classifyOne(ctx, item, &calls)
}

func (a *Arbiter) classifyOne(ctx context.Context, item model.LineItem, llmCalls *atomic.Int64) (result model.ClassificationResult) {
	// A single malformed item must never abort the run.
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic while classifying line item",
				"source_id", item.SourceID,
				"panic", r)
			result = a.unclassified(item, fmt.Sprintf("classification anomaly: %v", r))
		}
	}()

	if strings.TrimSpace(item.Label) == "" {
		return a.unclassified(item, "line item has no label")
	}

	var ruleCands, embCands model.CandidateMatches
	if a.rule != nil {
		ruleCands = a.rule.Propose(ctx, item)
	}
	if a.embedding != nil {
		embCands = a.embedding.Propose(ctx, item)
	}

	merged := make(model.CandidateMatches, 0, len(ruleCands)+len(embCands))
	merged = append(merged, ruleCands...)
	merged = append(merged, embCands...)

	ruleTop := ruleCands.Top()
	embTop := embCands.Top()

	var llmChoice *model.CandidateMatch
	llmRejectedAll := false
	if a.chooser != nil && a.needsLLM(ruleTop, embTop, merged) {
		llmCalls.Add(1)
		choice, err := a.chooser.Choose(ctx, item, merged, a.ont)
		switch {
		case err != nil:
			// Degraded strategy: recover locally via fallback, never surface.
			a.logger.Warn("LLM strategy degraded, using fallback",
				"source_id", item.SourceID,
				"error", err)
		case choice == nil:
			// A nil choice is the explicit none-of-the-above answer, not a
			// failure. The item stays unclassified rather than falling back.
			llmRejectedAll = true
		default:
			llmChoice = choice
		}
	}

	audit := merged
	if llmChoice != nil {
		audit = append(audit, *llmChoice)
	}

	// Agreement between the deterministic strategies is the strongest signal
	// and beats the language model even when it was consulted.
	if ruleTop != nil && embTop != nil && ruleTop.CategoryID == embTop.CategoryID {
		confidence := ruleTop.Score
		if embTop.Score > confidence {
			confidence = embTop.Score
		}
		return a.resolved(item, ruleTop.CategoryID, confidence, model.StrategyRule, ruleTop.Rationale, audit)
	}

	if llmChoice != nil {
		return a.resolved(item, llmChoice.CategoryID, llmChoice.Score, model.StrategyLLM, llmChoice.Rationale, audit)
	}

	if llmRejectedAll {
		result := a.unclassified(item, "language model rejected every candidate")
		result.Candidates = audit
		return result
	}

	if best := merged.Top(); best != nil {
		return a.resolved(item, best.CategoryID, best.Score, best.Strategy, best.Rationale, audit)
	}

	return a.unclassified(item, "no strategy produced a candidate")
}

// needsLLM decides whether the language model should be consulted: no
// candidates at all, a best score below the confident threshold, or the two
// deterministic strategies disagreeing on the top category.
func (a *Arbiter) needsLLM(ruleTop, embTop *model.CandidateMatch, merged model.CandidateMatches) bool {
	if len(merged) == 0 {
		return true
	}
	if top := merged.Top(); top != nil && top.Score < a.config.ConfidentThreshold {
		return true
	}
	if ruleTop != nil && embTop != nil && ruleTop.CategoryID != embTop.CategoryID {
		return true
	}
	return false
}

func (a *Arbiter) resolved(item model.LineItem, categoryID string, confidence float64, strategy model.Strategy, rationale string, audit model.CandidateMatches) model.ClassificationResult {
	if confidence > 1.0 {
		confidence = 1.0
	}
	return model.ClassificationResult{
		ClassifiedAt:    time.Now(),
		LineItemID:      item.SourceID,
		CategoryID:      categoryID,
		Confidence:      confidence,
		WinningStrategy: strategy,
		Rationale:       rationale,
		OntologyVersion: a.ont.Version(),
		Candidates:      audit,
	}
}

// unclassified is the valid terminal state for items no strategy could
// place. It is surfaced as "needs manual mapping", never as an error.
func (a *Arbiter) unclassified(item model.LineItem, rationale string) model.ClassificationResult {
	return model.ClassificationResult{
		ClassifiedAt:    time.Now(),
		LineItemID:      item.SourceID,
		Confidence:      0,
		Rationale:       rationale,
		OntologyVersion: a.ont.Version(),
	}
}
