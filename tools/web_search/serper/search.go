package serper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/retry"
	"github.com/mohammad-safakhou/reagent/tools/web_search/models"
)

type Search struct {
	APIKey  string
	Timeout time.Duration
}

func (s Search) Search(ctx context.Context, query string, limit int) ([]models.Result, error) {
	// https://serper.dev/ docs
	body, err := json.Marshal(map[string]interface{}{"q": query, "num": limit})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", "https://google.serper.dev/search", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: s.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, retry.Transientf("serper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retry.Transientf("serper returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper returned status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	for i, r := range raw.Organic {
		if i >= limit {
			break
		}
		out = append(out, models.Result{
			Title:         r.Title,
			URL:           r.Link,
			Summary:       r.Snippet,
			Source:        "serper",
			PublishedDate: r.Date,
		})
	}
	return out, nil
}
