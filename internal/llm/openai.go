package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-5.1"

// OpenAIClient implements the Client interface using the OpenAI Responses
// API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient constructs a client that talks directly to the OpenAI API.
func NewOpenAIClient(apiKey, modelName string) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai client requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (c *OpenAIClient) ModelName() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}

	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		params.Instructions = openai.String(sys)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}

	return resp.OutputText(), nil
}
