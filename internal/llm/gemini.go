package llm

import (
	"context"
	"fmt"
	"strings"

	"voice-broker-go/internal/config"

	"google.golang.org/genai"
)

// GeminiClient talks to Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini backend.
func NewGeminiClient(ctx context.Context, cfg config.LLM) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.ApiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

func (g *GeminiClient) Classify(ctx context.Context, text, schemaHint string) (string, error) {
	return g.generate(ctx, classifyPrompt(text, schemaHint), 0)
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, prompt, 0.7)
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates: %w", ErrUnavailable)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text: %w", ErrUnavailable)
	}
	return text, nil
}
