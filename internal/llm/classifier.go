package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledgersmith/cellflow/internal/common"
	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
	"github.com/ledgersmith/cellflow/internal/service"
)

// NoneOfTheAbove is the explicit opt-out option offered alongside candidate
// categories. A model choosing it is a valid response, not a failure.
const NoneOfTheAbove = "none_of_the_above"

// Config holds configuration for the LLM classifier.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// Classifier delegates ambiguous line items to a hosted language model,
// offering the merged rule and embedding candidates as multiple-choice
// options.
type Classifier struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewClassifier creates a new LLM-based classifier.
func NewClassifier(cfg Config, logger *slog.Logger) (*Classifier, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	// Retries are capped: one initial attempt plus two retries.
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Classifier{
		client:      client,
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}, nil
}

// NewClassifierWithClient wraps an existing client; used by tests to
// substitute a deterministic stub.
func NewClassifierWithClient(client Client, logger *slog.Logger) *Classifier {
	return &Classifier{
		client:      client,
		logger:      logger,
		retryOpts:   service.RetryOptions{MaxAttempts: 1, InitialDelay: time.Millisecond},
		rateLimiter: newRateLimiter(0),
	}
}

// Choose asks the model to pick one of the offered candidate categories for
// the line item. A nil candidate with nil error means the model explicitly
// chose none of the above. An error means the strategy degraded (external
// failure, or a response outside the offered set after retries); the caller
// applies the fallback policy.
func (c *Classifier) Choose(ctx context.Context, item model.LineItem, candidates model.CandidateMatches, ont *ontology.Ontology) (*model.CandidateMatch, error) {
	offered := dedupeByCategory(candidates)

	if err := c.rateLimiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	prompt := c.buildPrompt(item, offered, ont)

	allowed := make(map[string]bool, len(offered)+1)
	for _, cand := range offered {
		allowed[cand.CategoryID] = true
	}
	allowed[NoneOfTheAbove] = true

	var choice ChoiceResponse

	err := common.WithRetry(ctx, func() error {
		c.logger.Debug("attempting LLM classification",
			"source_id", item.SourceID,
			"label", item.Label)

		response, err := c.client.Choose(ctx, prompt)
		if err != nil {
			c.logger.Warn("LLM classification attempt failed",
				"error", err,
				"source_id", item.SourceID)
			return &common.RetryableError{Err: err, Retryable: true}
		}

		// A category outside the offered set is an invalid response and is
		// retried like any other malformed reply.
		if !allowed[response.CategoryID] {
			c.logger.Warn("LLM returned category outside offered set",
				"category", response.CategoryID,
				"source_id", item.SourceID)
			return &common.RetryableError{
				Err:       fmt.Errorf("category %q not in offered set", response.CategoryID),
				Retryable: true,
			}
		}

		choice = response
		return nil
	}, c.retryOpts)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrClassificationFailed, err)
	}

	if choice.CategoryID == NoneOfTheAbove {
		c.logger.Info("LLM chose none of the above",
			"source_id", item.SourceID,
			"label", item.Label)
		return nil, nil
	}

	c.logger.Info("line item classified by LLM",
		"source_id", item.SourceID,
		"label", item.Label,
		"category", choice.CategoryID,
		"confidence", choice.Confidence)

	return &model.CandidateMatch{
		CategoryID: choice.CategoryID,
		Score:      choice.Confidence,
		Strategy:   model.StrategyLLM,
		Rationale:  choice.Reasoning,
	}, nil
}

// buildPrompt creates the multiple-choice prompt for a line item.
func (c *Classifier) buildPrompt(item model.LineItem, offered model.CandidateMatches, ont *ontology.Ontology) string {
	var details strings.Builder
	fmt.Fprintf(&details, "Label: %s\nValue: %.2f", item.Label, item.RawValue)
	if item.SectionHint != "" {
		fmt.Fprintf(&details, "\nStatement Section: %s", item.SectionHint)
	}

	var options strings.Builder
	for _, cand := range offered {
		name := cand.CategoryID
		if cat := ont.Category(cand.CategoryID); cat != nil {
			name = fmt.Sprintf("%s (%s, %s)", cand.CategoryID, cat.DisplayName, cat.Section)
		}
		fmt.Fprintf(&options, "- %s — prior score %.2f from %s matching\n", name, cand.Score, cand.Strategy)
	}
	fmt.Fprintf(&options, "- %s — use this when no offered category fits\n", NoneOfTheAbove)

	return fmt.Sprintf(`Classify this financial statement line item into one of the offered standardized accounting categories.

Line Item:
%s

Offered Categories:
%s
Instructions:
1. Choose exactly ONE option from the offered list, by its id. Do not invent new categories.
2. Respond in this exact format:
   CATEGORY: <category id or %s>
   CONFIDENCE: <0.0-1.0>
   REASONING: <one sentence explaining the choice>

Base the choice on what the line item IS within its statement section, not on assumptions about the business.`,
		details.String(),
		options.String(),
		NoneOfTheAbove)
}

// Close stops background goroutines and cleans up resources.
func (c *Classifier) Close() error {
	if c.rateLimiter != nil {
		c.rateLimiter.Close()
	}
	return nil
}

// dedupeByCategory keeps the highest-scoring candidate per category so the
// prompt offers each category once.
func dedupeByCategory(candidates model.CandidateMatches) model.CandidateMatches {
	sorted := make(model.CandidateMatches, len(candidates))
	copy(sorted, candidates)
	sorted.Sort()

	seen := make(map[string]bool, len(sorted))
	var offered model.CandidateMatches
	for _, cand := range sorted {
		if seen[cand.CategoryID] {
			continue
		}
		seen[cand.CategoryID] = true
		offered = append(offered, cand)
	}
	return offered
}
