package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/retry"
)

// runWriter turns the collected evidence into a markdown report draft. An
// empty evidence set still produces a best-effort draft; the prompt tells
// the model to flag the data limitation. Exhausting the retry budget is
// fatal for the run.
func (e *Engine) runWriter(ctx context.Context, s *ResearchState) error {
	if s.TaskPlan == nil {
		return &fatalError{kind: ErrKindPlanning, err: errors.New("writer reached without a task plan")}
	}

	prompt := writerPrompt(s)
	var draft string
	err := retry.Do(ctx, e.cfg.LLM.MaxRetries, time.Second, func(ctx context.Context) error {
		out, err := e.generateCached(ctx, prompt, map[string]interface{}{"temperature": 0.3})
		if err != nil {
			return err
		}
		out = strings.TrimSpace(stripFences(out))
		if out == "" {
			return retry.Transientf("model returned an empty draft")
		}
		draft = out
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &fatalError{kind: ErrKindDrafting, err: fmt.Errorf("draft generation failed: %w", err)}
	}

	s.Draft = draft + "\n\n" + referencesSection(s.Results)
	s.Feedback = ""
	s.HumanInput = ""
	e.logger.Printf("run %s: draft ready (%d chars, %d reference(s))", s.RunID, len(s.Draft), len(s.Results))
	return nil
}

// referencesSection renders the evidence list appended to every draft.
// Results keep first-discovery order, so the numbering is stable across
// revisions.
func referencesSection(results []SearchResult) string {
	var b strings.Builder
	b.WriteString("## References\n")
	if len(results) == 0 {
		b.WriteString("\n_No sources were collected for this report._\n")
		return b.String()
	}
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, r.Title, r.URL)
		if r.PublishedDate != "" {
			fmt.Fprintf(&b, ", %s", r.PublishedDate)
		}
	}
	b.WriteString("\n")
	return b.String()
}
