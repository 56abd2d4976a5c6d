// Package llm holds the script-writing clients.
package llm

import "context"

// LLM writes meditation scripts. Output length and sampling temperature
// come from the provider's config.
type LLM interface {
	GenerateResponse(ctx context.Context, prompt string) (string, error)

	// IsModelAvailable reports whether the configured model can be used.
	IsModelAvailable(ctx context.Context) error
}
