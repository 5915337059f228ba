package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsWithMockProvider(t *testing.T) {
	t.Setenv("REAGENT_LLM_PROVIDER", "mock")
	t.Setenv("REAGENT_SEARCH_API_KEY", "test-key")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for explicitly named missing file")
	}

	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Fatalf("env override lost: %q", cfg.LLM.Provider)
	}
	if cfg.Search.Provider != "tavily" || cfg.Search.MaxConcurrency != 5 {
		t.Fatalf("search defaults wrong: %+v", cfg.Search)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.SearchTTL != time.Hour {
		t.Fatalf("cache defaults wrong: %+v", cfg.Cache)
	}
	if cfg.Checkpoint.Backend != "memory" {
		t.Fatalf("checkpoint default wrong: %+v", cfg.Checkpoint)
	}
	if cfg.Orchestrator.MaxIterations != 5 || cfg.Orchestrator.PlanAttempts != 2 {
		t.Fatalf("orchestrator defaults wrong: %+v", cfg.Orchestrator)
	}
}

func TestLoadConfigRejectsOpenAIWithoutKey(t *testing.T) {
	t.Setenv("REAGENT_LLM_PROVIDER", "openai")
	t.Setenv("REAGENT_LLM_API_KEY", "")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected validation error for openai without api key")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("REAGENT_LLM_PROVIDER", "")
	t.Setenv("REAGENT_LLM_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
  "llm": {"provider": "mock"},
  "search": {"provider": "serper", "api_key": "k", "max_concurrency": 2},
  "orchestrator": {"max_iterations": 3}
}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Search.Provider != "serper" || cfg.Search.MaxConcurrency != 2 {
		t.Fatalf("file values lost: %+v", cfg.Search)
	}
	if cfg.Orchestrator.MaxIterations != 3 {
		t.Fatalf("file values lost: %+v", cfg.Orchestrator)
	}
	// Untouched keys keep their defaults.
	if cfg.Search.MaxResults != 5 {
		t.Fatalf("defaults lost on file load: %+v", cfg.Search)
	}
}

func TestOrchestratorValidation(t *testing.T) {
	o := OrchestratorConfig{MaxIterations: 0, PlanAttempts: 2}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for max_iterations 0")
	}
	o = OrchestratorConfig{MaxIterations: 11, PlanAttempts: 2}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for max_iterations 11")
	}
	o = OrchestratorConfig{MaxIterations: 5, PlanAttempts: 2}
	if err := o.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
