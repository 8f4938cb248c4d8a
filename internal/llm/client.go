package llm

import "context"

// Client defines the interface for LLM providers.
type Client interface {
	Choose(ctx context.Context, prompt string) (ChoiceResponse, error)
}

// ChoiceResponse contains the model's multiple-choice answer.
type ChoiceResponse struct {
	CategoryID string
	Reasoning  string
	Confidence float64
}
