// Package openai implements the text-generation capability against the
// OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/retry"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// UsageRecorder receives the token usage the API reports for each completed
// request, together with its estimated cost in USD.
type UsageRecorder interface {
	RecordTokens(tokens int64, cost float64)
}

// Client talks to the OpenAI chat completions endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	usage       UsageRecorder
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type modelPrice struct {
	prompt     float64
	completion float64
}

// USD per million tokens. Unknown models use the default rate.
var modelPrices = map[string]modelPrice{
	"gpt-4o":       {prompt: 2.50, completion: 10.00},
	"gpt-4o-mini":  {prompt: 0.15, completion: 0.60},
	"gpt-4.1":      {prompt: 2.00, completion: 8.00},
	"gpt-4.1-mini": {prompt: 0.40, completion: 1.60},
}

var defaultPrice = modelPrice{prompt: 2.50, completion: 10.00}

func estimateCost(model string, u usage) float64 {
	p, ok := modelPrices[model]
	if !ok {
		p = defaultPrice
	}
	return (float64(u.PromptTokens)*p.prompt + float64(u.CompletionTokens)*p.completion) / 1e6
}

// NewClient creates an OpenAI client. baseURL may be empty for the public
// API; rec may be nil when usage should not be tracked.
func NewClient(apiKey, baseURL, model string, temperature float64, maxTokens int, timeout time.Duration, rec UsageRecorder) *Client {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},
		usage:       rec,
	}
}

// Generate sends prompt as a single user message and returns the completion.
func (c *Client) Generate(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
	reqBody := request{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if t, ok := options["temperature"].(float64); ok {
		reqBody.Temperature = t
	}
	if mt, ok := options["max_tokens"].(int); ok {
		reqBody.MaxTokens = mt
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", retry.Transientf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.Transientf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var openaiResp response
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if openaiResp.Error != nil {
		return "", fmt.Errorf("API error: %s", openaiResp.Error.Message)
	}
	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("API returned no choices")
	}
	if c.usage != nil && openaiResp.Usage.TotalTokens > 0 {
		c.usage.RecordTokens(openaiResp.Usage.TotalTokens, estimateCost(c.model, openaiResp.Usage))
	}
	return openaiResp.Choices[0].Message.Content, nil
}
