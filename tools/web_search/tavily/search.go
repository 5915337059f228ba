package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/retry"
	"github.com/mohammad-safakhou/reagent/tools/web_search/models"
)

const apiURL = "https://api.tavily.com/search"

type Search struct {
	APIKey  string
	Timeout time.Duration
}

func (s Search) Search(ctx context.Context, query string, limit int) ([]models.Result, error) {
	// https://docs.tavily.com/docs/rest-api
	payload := map[string]interface{}{
		"api_key":     s.APIKey,
		"query":       query,
		"max_results": limit,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: s.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, retry.Transientf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retry.Transientf("tavily returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var raw struct {
		Results []struct {
			Title         string  `json:"title"`
			URL           string  `json:"url"`
			Content       string  `json:"content"`
			Score         float64 `json:"score"`
			PublishedDate string  `json:"published_date"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := make([]models.Result, 0, len(raw.Results))
	for i, r := range raw.Results {
		if i >= limit {
			break
		}
		out = append(out, models.Result{
			Title:          r.Title,
			URL:            r.URL,
			Summary:        r.Content,
			Source:         "tavily",
			PublishedDate:  r.PublishedDate,
			RelevanceScore: r.Score,
		})
	}
	return out, nil
}
