// Package llm provides the language-model classification strategy for
// ambiguous line items. It supports multiple hosted providers with retry
// logic and rate limiting, and validates every response against the offered
// candidate set.
package llm
