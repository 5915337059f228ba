package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/cache"
	"github.com/mohammad-safakhou/reagent/internal/retry"
	"github.com/mohammad-safakhou/reagent/tools/web_search/models"
)

// runResearcher fans the plan's queries out to the search tool with a
// bounded degree of parallelism, then merges the batches in query order so
// the collected results are deterministic regardless of goroutine timing.
// Individual query failures are tolerated; only a cancelled context stops
// the pass.
func (e *Engine) runResearcher(ctx context.Context, s *ResearchState) error {
	if s.TaskPlan == nil {
		return &fatalError{kind: ErrKindPlanning, err: errors.New("researcher reached without a task plan")}
	}
	queries := s.TaskPlan.SearchQueries

	batches := make([][]SearchResult, len(queries))
	failures := make([]error, len(queries))
	sem := make(chan struct{}, e.cfg.Search.MaxConcurrency)
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(idx int, query string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				failures[idx] = ctx.Err()
				return
			}
			results, err := e.searchCached(ctx, query)
			if err != nil {
				failures[idx] = err
				e.telemetry.RecordSearchQuery("failed")
				e.logger.Printf("run %s: query %q failed after retries: %v", s.RunID, query, err)
				return
			}
			batches[idx] = results
		}(i, q)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	added := 0
	failed := 0
	for i, batch := range batches {
		added += s.MergeResults(batch)
		if failures[i] != nil {
			failed++
		}
	}
	s.NoNewEvidence = added == 0
	e.logger.Printf("run %s: research pass settled: %d new result(s), %d total, %d of %d quer(ies) failed",
		s.RunID, added, len(s.Results), failed, len(queries))
	return nil
}

// searchCached resolves one query through the search cache, retrying
// transient provider failures with backoff on a miss.
func (e *Engine) searchCached(ctx context.Context, query string) ([]SearchResult, error) {
	key := cache.Key("search", query)
	if data, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		e.telemetry.RecordCacheLookup("search", true)
		e.telemetry.RecordSearchQuery("cached")
		var out []SearchResult
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		// A corrupt entry falls through to a fresh search.
	}
	e.telemetry.RecordCacheLookup("search", false)

	var out []SearchResult
	err := retry.Do(ctx, e.cfg.Search.MaxRetries, 500*time.Millisecond, func(ctx context.Context) error {
		hits, err := e.searcher.Search(ctx, query, e.cfg.Search.MaxResults)
		if err != nil {
			return err
		}
		out = fromSearchHits(hits)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.telemetry.RecordSearchQuery("success")
	if data, err := json.Marshal(out); err == nil {
		if err := e.cache.Set(ctx, key, data, e.cfg.Cache.SearchTTL); err != nil {
			e.logger.Printf("search cache write failed: %v", err)
		}
	}
	return out, nil
}

func fromSearchHits(hits []models.Result) []SearchResult {
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{
			Title:          h.Title,
			Summary:        h.Summary,
			URL:            h.URL,
			Source:         h.Source,
			PublishedDate:  h.PublishedDate,
			RelevanceScore: h.RelevanceScore,
		})
	}
	return out
}
