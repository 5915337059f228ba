// Package provider defines the text-generation capability contract consumed
// by the agent core, plus a factory selecting a concrete adapter.
package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/reagent/config"
	"github.com/mohammad-safakhou/reagent/provider/mock"
	"github.com/mohammad-safakhou/reagent/provider/openai"
)

// LLMProvider is the opaque text-generation capability. Options may carry
// "temperature" (float64) and "max_tokens" (int). Implementations wrap
// transient failures (timeouts, 429, 5xx) with retry.Transient so callers
// can apply bounded retry; permanent failures come back unwrapped.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, options map[string]interface{}) (string, error)
}

// NewLLMProvider selects an adapter from configuration. usage receives the
// token counts adapters report per request and may be nil.
func NewLLMProvider(cfg config.LLMConfig, usage openai.UsageRecorder) (LLMProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout, usage), nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
