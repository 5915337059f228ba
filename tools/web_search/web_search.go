// Package web_search defines the web-search capability contract and the
// factory selecting a vendor adapter.
package web_search

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/reagent/config"
	"github.com/mohammad-safakhou/reagent/tools/web_search/brave"
	"github.com/mohammad-safakhou/reagent/tools/web_search/models"
	"github.com/mohammad-safakhou/reagent/tools/web_search/serper"
	"github.com/mohammad-safakhou/reagent/tools/web_search/tavily"
)

// WebSearcher is the opaque web-search capability. Adapters wrap transient
// failures with retry.Transient; permanent failures come back unwrapped.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.Result, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
	BraveProvider  Provider = "brave"
	SerperProvider Provider = "serper"
)

// NewWebSearcher selects a vendor adapter from configuration.
func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	switch Provider(cfg.Provider) {
	case TavilyProvider:
		return tavily.Search{APIKey: cfg.APIKey, Timeout: cfg.Timeout}, nil
	case BraveProvider:
		return brave.Search{APIKey: cfg.APIKey, Timeout: cfg.Timeout}, nil
	case SerperProvider:
		return serper.Search{APIKey: cfg.APIKey, Timeout: cfg.Timeout}, nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}
