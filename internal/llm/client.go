// Package llm provides the text-completion capability consumed by plan
// synthesis. The orchestrator core only depends on the Client interface;
// concrete backends live beside it.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/codefionn/taskpilot/internal/config"
)

// Client is the interface for LLM clients. Implementations must return the
// raw model text; callers parse it.
type Client interface {
	// Complete sends a prompt with an optional system prompt and returns
	// the model's text response.
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
	// ModelName returns the model name
	ModelName() string
}

// NewClient builds a client for the configured provider. The API key is read
// from the configured env var, falling back to the provider's conventional
// one.
func NewClient(cfg *config.Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch provider {
	case "", "anthropic":
		return NewAnthropicClient(apiKey(cfg, "ANTHROPIC_API_KEY"), cfg.Model)
	case "openai":
		return NewOpenAIClient(apiKey(cfg, "OPENAI_API_KEY"), cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

func apiKey(cfg *config.Config, fallbackEnv string) string {
	env := strings.TrimSpace(cfg.APIKeyEnv)
	if env == "" {
		env = fallbackEnv
	}
	return os.Getenv(env)
}
