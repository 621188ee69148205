package llm

import (
	"context"
	"fmt"
	"strings"

	"voice-broker-go/internal/config"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI-compatible backend. BaseURL selects a non-default endpoint.
func NewOpenAIClient(cfg config.LLM) *OpenAIClient {
	openaiCfg := openai.DefaultConfig(cfg.ApiKey)
	if cfg.BaseURL != "" {
		openaiCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(openaiCfg), model: cfg.Model}
}

func (o *OpenAIClient) Classify(ctx context.Context, text, schemaHint string) (string, error) {
	return o.complete(ctx, classifyPrompt(text, schemaHint), 0)
}

func (o *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	return o.complete(ctx, prompt, 0.7)
}

func (o *OpenAIClient) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", ErrUnavailable)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned empty text: %w", ErrUnavailable)
	}
	return text, nil
}
