package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicClient implements the Client interface using the official
// Anthropic SDK.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates an Anthropic client backed by the official SDK.
func NewAnthropicClient(apiKey, modelName string) (Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic client requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		model:  model,
	}, nil
}

func (c *AnthropicClient) ModelName() string {
	return c.model
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)},
			},
		},
	}

	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	return collectAnthropicText(msg.Content), nil
}

func collectAnthropicText(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return sb.String()
}
