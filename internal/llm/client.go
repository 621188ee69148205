// Package llm is the language-model collaborator. It offers two operations, Classify
// and Generate, behind a Client interface with Gemini and OpenAI-compatible backends.
//
// Every caller must keep working when no Client could be built (nil) or when a
// Client returns an error or output of the wrong shape.
package llm

import (
	"context"
	"fmt"
	"strings"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/faults"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the model cannot be reached or gives an empty answer.
var ErrUnavailable = faults.New(faults.Upstream, "llm_unavailable", "language model unavailable")

// Client classifies and generates text.
type Client interface {
	// Classify answers schemaHint about text. The answer is expected to be short and
	// machine-readable (a label, a symbol or a JSON object), but callers validate it.
	Classify(ctx context.Context, text, schemaHint string) (string, error)
	// Generate answers a free-form prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// NewClient builds the configured backend wrapped in the retry decorator. It fails when
// no API key is configured; callers then run with a nil Client.
func NewClient(ctx context.Context, cfg config.LLM, logger *zap.Logger) (Client, error) {
	if strings.TrimSpace(cfg.ApiKey) == "" {
		return nil, fmt.Errorf("llm api key not configured: %w", ErrUnavailable)
	}

	var backend Client
	var err error
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		backend, err = NewGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		backend = NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Language model configured", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	return WithRetry(backend, cfg, logger), nil
}

func classifyPrompt(text, schemaHint string) string {
	return fmt.Sprintf("%s\n\nInput: %q", strings.TrimSpace(schemaHint), text)
}

// CleanJSON strips markdown code fences and any prose around the outermost JSON
// object so the result can be decoded.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}
