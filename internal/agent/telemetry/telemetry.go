// Package telemetry provides monitoring and cost tracking for research runs.
package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/reagent/config"
)

var (
	nodeExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reagent_node_executions_total",
		Help: "Node executions by node and outcome.",
	}, []string{"node", "outcome"})

	searchQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reagent_search_queries_total",
		Help: "Search queries by outcome (success, failed, cached).",
	}, []string{"outcome"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reagent_cache_lookups_total",
		Help: "Cache lookups by kind and result.",
	}, []string{"kind", "result"})

	runsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reagent_runs_total",
		Help: "Finished runs by terminal status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reagent_run_duration_seconds",
		Help:    "Wall-clock duration of finished runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Telemetry records run events and aggregates token cost.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu          sync.RWMutex
	totalTokens int64
	totalCost   float64
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
	}
}

// RecordNodeExecution counts a node execution with its outcome
// (success, failed, fallback).
func (t *Telemetry) RecordNodeExecution(node, outcome string) {
	if !t.config.Enabled {
		return
	}
	nodeExecutions.WithLabelValues(node, outcome).Inc()
}

// RecordSearchQuery counts a settled search query.
func (t *Telemetry) RecordSearchQuery(outcome string) {
	if !t.config.Enabled {
		return
	}
	searchQueries.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a cache lookup; kind is "search" or "llm".
func (t *Telemetry) RecordCacheLookup(kind string, hit bool) {
	if !t.config.Enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordRun records a finished run.
func (t *Telemetry) RecordRun(status string, duration time.Duration) {
	if !t.config.Enabled {
		return
	}
	runsCompleted.WithLabelValues(status).Inc()
	runDuration.Observe(duration.Seconds())
	t.logger.Printf("run finished: status=%s duration=%v", status, duration)
}

// RecordTokens accumulates token usage and its estimated cost.
func (t *Telemetry) RecordTokens(tokens int64, cost float64) {
	if !t.config.CostTracking {
		return
	}
	t.mu.Lock()
	t.totalTokens += tokens
	t.totalCost += cost
	t.mu.Unlock()
}

// Totals returns accumulated token usage and estimated cost.
func (t *Telemetry) Totals() (int64, float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalTokens, t.totalCost
}
