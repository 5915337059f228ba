package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/reagent/config"
	"github.com/mohammad-safakhou/reagent/internal/agent/core"
	"github.com/mohammad-safakhou/reagent/internal/agent/telemetry"
	"github.com/mohammad-safakhou/reagent/internal/cache"
	"github.com/mohammad-safakhou/reagent/internal/checkpoint"
	"github.com/mohammad-safakhou/reagent/provider/mock"
	"github.com/mohammad-safakhou/reagent/tools/web_search/models"
)

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, query string, _ int) ([]models.Result, error) {
	return []models.Result{
		{Title: "hit", URL: "https://example.test/" + strings.ReplaceAll(query, " ", "-"), Summary: "s", Source: "stub"},
	}, nil
}

func newTestServer(t *testing.T) (*echo.Echo, *core.Manager) {
	t.Helper()
	cfg := &config.Config{
		LLM:          config.LLMConfig{Provider: "mock", MaxRetries: 2},
		Search:       config.SearchConfig{Provider: "tavily", MaxResults: 3, MaxRetries: 2, MaxConcurrency: 2},
		Cache:        config.CacheConfig{Backend: "memory", SearchTTL: time.Hour, LLMTTL: time.Hour},
		Orchestrator: config.OrchestratorConfig{MaxIterations: 5, PlanAttempts: 2},
	}
	store := checkpoint.NewMemory()
	tele := telemetry.NewTelemetry(config.TelemetryConfig{})
	logger := log.New(io.Discard, "", 0)
	engine := core.NewEngine(cfg, logger, tele, mock.New(), stubSearcher{}, cache.NewMemory(), store)
	mgr := core.NewManager(engine, store, cfg.Orchestrator.MaxIterations, logger)
	return New(mgr, tele), mgr
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStartValidation(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(t, e, http.MethodPost, "/api/research", `{"theme":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty theme, got %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodPost, "/api/research", `{"theme":"go","max_iterations":99}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range max_iterations, got %d", rec.Code)
	}
}

func TestUnknownRunIs404(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/api/research/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, e, http.MethodGet, "/api/research/nope/result", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	e, mgr := newTestServer(t)
	ctx := context.Background()

	rec := doJSON(t, e, http.MethodPost, "/api/research", `{"theme":"edge computing","max_iterations":2,"human_in_loop":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start failed: %d %s", rec.Code, rec.Body.String())
	}
	var started map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}
	runID := started["run_id"]
	if runID == "" {
		t.Fatal("missing run_id")
	}
	if err := mgr.Wait(ctx, runID); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	// Interrupted at the plan juncture.
	rec = doJSON(t, e, http.MethodGet, "/api/research/"+runID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status failed: %d", rec.Code)
	}
	var info core.StatusInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if info.Status != core.StatusInterrupted || info.NextNode != core.NodeResearcher {
		t.Fatalf("expected plan interrupt, got %+v", info)
	}

	// Result is not available while interrupted.
	rec = doJSON(t, e, http.MethodGet, "/api/research/"+runID+"/result", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for interrupted run, got %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/research/"+runID+"/resume", `{"action":"resume"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resume failed: %d %s", rec.Code, rec.Body.String())
	}
	if err := mgr.Wait(ctx, runID); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/research/"+runID+"/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("result failed: %d %s", rec.Code, rec.Body.String())
	}
	var res resultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if res.Report == "" || len(res.Sources) == 0 {
		t.Fatalf("incomplete result: %+v", res)
	}

	// Listing includes the run.
	rec = doJSON(t, e, http.MethodGet, "/api/research", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), runID) {
		t.Fatalf("list missing run: %d %s", rec.Code, rec.Body.String())
	}

	// Stats count it as completed.
	rec = doJSON(t, e, http.MethodGet, "/api/research/stats", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"completed":1`) {
		t.Fatalf("stats wrong: %d %s", rec.Code, rec.Body.String())
	}

	// Delete removes it.
	rec = doJSON(t, e, http.MethodDelete, "/api/research/"+runID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodGet, "/api/research/"+runID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCancelSuspendedRun(t *testing.T) {
	e, mgr := newTestServer(t)
	ctx := context.Background()

	rec := doJSON(t, e, http.MethodPost, "/api/research", `{"theme":"go","max_iterations":2,"human_in_loop":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start failed: %d", rec.Code)
	}
	var started map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &started)
	runID := started["run_id"]
	if err := mgr.Wait(ctx, runID); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/research/"+runID+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodGet, "/api/research/"+runID, "")
	var info core.StatusInfo
	_ = json.Unmarshal(rec.Body.Bytes(), &info)
	if info.Status != core.StatusFailed || info.Error == nil || info.Error.Kind != core.ErrKindCancelled {
		t.Fatalf("expected cancelled failure, got %+v", info)
	}
}

func TestStatsReportTokenTotals(t *testing.T) {
	cfg := &config.Config{
		LLM:          config.LLMConfig{Provider: "mock", MaxRetries: 2},
		Search:       config.SearchConfig{Provider: "tavily", MaxResults: 3, MaxRetries: 2, MaxConcurrency: 2},
		Cache:        config.CacheConfig{Backend: "memory", SearchTTL: time.Hour, LLMTTL: time.Hour},
		Orchestrator: config.OrchestratorConfig{MaxIterations: 5, PlanAttempts: 2},
		Telemetry:    config.TelemetryConfig{CostTracking: true},
	}
	store := checkpoint.NewMemory()
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	logger := log.New(io.Discard, "", 0)
	engine := core.NewEngine(cfg, logger, tele, mock.New(), stubSearcher{}, cache.NewMemory(), store)
	mgr := core.NewManager(engine, store, cfg.Orchestrator.MaxIterations, logger)
	e := New(mgr, tele)

	tele.RecordTokens(120, 0.004)
	rec := doJSON(t, e, http.MethodGet, "/api/research/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats failed: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total_tokens":120`) {
		t.Fatalf("token totals missing from stats: %s", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
