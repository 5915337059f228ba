package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/retry"
)

type recordedUsage struct {
	calls  int
	tokens int64
	cost   float64
}

func (r *recordedUsage) RecordTokens(tokens int64, cost float64) {
	r.calls++
	r.tokens += tokens
	r.cost += cost
}

func completionResponse(content string, withUsage bool) map[string]interface{} {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	if withUsage {
		resp["usage"] = map[string]int64{
			"prompt_tokens":     30,
			"completion_tokens": 12,
			"total_tokens":      42,
		}
	}
	return resp
}

func TestGenerateReportsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_ = json.NewEncoder(w).Encode(completionResponse("hello", true))
	}))
	defer srv.Close()

	rec := &recordedUsage{}
	c := NewClient("key", srv.URL, "gpt-4o-mini", 0.2, 0, time.Second, rec)
	out, err := c.Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if out != "hello" {
		t.Fatalf("unexpected completion %q", out)
	}
	if rec.calls != 1 || rec.tokens != 42 {
		t.Fatalf("usage not recorded: %+v", rec)
	}
	want := estimateCost("gpt-4o-mini", usage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42})
	if rec.cost != want {
		t.Fatalf("cost %v, want %v", rec.cost, want)
	}
}

func TestGenerateWithoutUsageRecordsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse("hello", false))
	}))
	defer srv.Close()

	rec := &recordedUsage{}
	c := NewClient("key", srv.URL, "gpt-4o", 0, 0, time.Second, rec)
	if _, err := c.Generate(context.Background(), "hi", nil); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("expected no usage records, got %+v", rec)
	}
}

func TestGenerateToleratesNilRecorder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse("hello", true))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, "gpt-4o", 0, 0, time.Second, nil)
	out, err := c.Generate(context.Background(), "hi", nil)
	if err != nil || out != "hello" {
		t.Fatalf("generate failed: %q %v", out, err)
	}
}

func TestGenerateRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, "gpt-4o", 0, 0, time.Second, nil)
	_, err := c.Generate(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !retry.IsTransient(err) {
		t.Fatalf("429 must be transient, got %v", err)
	}
}

func TestEstimateCostUnknownModelUsesDefault(t *testing.T) {
	u := usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000}
	want := (1000*defaultPrice.prompt + 1000*defaultPrice.completion) / 1e6
	if got := estimateCost("mystery-model", u); got != want {
		t.Fatalf("cost %v, want %v", got, want)
	}
}
