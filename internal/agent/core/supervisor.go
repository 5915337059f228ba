package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/retry"
)

// runSupervisor produces the investigation plan. It is a no-op when a plan
// already exists and no re-plan was requested, which makes resuming into a
// later node idempotent. Plan generation never fails the run: after the
// configured attempts a deterministic fallback plan is used.
func (e *Engine) runSupervisor(ctx context.Context, s *ResearchState) error {
	if s.TaskPlan != nil && !s.ReplanRequested {
		return nil
	}
	replanning := s.ReplanRequested

	prompt := planningPrompt(s.Theme, s.HumanInput)
	var raw string
	genErr := retry.Do(ctx, e.cfg.Orchestrator.PlanAttempts, time.Second, func(ctx context.Context) error {
		out, err := e.generateCached(ctx, prompt, map[string]interface{}{"temperature": 0.0})
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if genErr != nil && (errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded)) {
		return genErr
	}

	var plan *TaskPlan
	if genErr == nil {
		p, err := parsePlan(raw, s.Theme)
		if err != nil {
			genErr = err
		} else {
			plan = p
		}
	}
	if plan == nil {
		e.logger.Printf("run %s: plan generation failed (%v), using fallback plan", s.RunID, genErr)
		e.telemetry.RecordNodeExecution(string(NodeSupervisor), "fallback")
		plan = fallbackPlan(s.Theme)
	}
	plan.CreatedAt = time.Now()

	s.TaskPlan = plan
	s.HumanInput = ""
	if replanning {
		s.ReplanRequested = false
		if e.cfg.Orchestrator.ReplanCostsIteration && s.Iteration < s.MaxIterations {
			s.Iteration++
		}
	}
	logPlan(e.logger, s.RunID, plan)
	return nil
}

func parsePlan(raw, theme string) (*TaskPlan, error) {
	var plan TaskPlan
	if err := decodeJSON(raw, &plan); err != nil {
		return nil, err
	}
	if strings.TrimSpace(plan.Theme) == "" {
		plan.Theme = theme
	}
	if len(plan.InvestigationPoints) == 0 {
		return nil, fmt.Errorf("plan has no investigation points")
	}
	if len(plan.SearchQueries) == 0 {
		return nil, fmt.Errorf("plan has no search queries")
	}
	return &plan, nil
}

// fallbackPlan is a generic but serviceable plan used when the model cannot
// produce one. It keeps the run moving instead of failing it.
func fallbackPlan(theme string) *TaskPlan {
	return &TaskPlan{
		Theme: theme,
		InvestigationPoints: []string{
			fmt.Sprintf("%s fundamentals", theme),
			fmt.Sprintf("%s applications", theme),
			fmt.Sprintf("%s current developments", theme),
		},
		SearchQueries: []string{
			theme,
			fmt.Sprintf("%s overview", theme),
			fmt.Sprintf("%s latest", theme),
		},
		PlanText: fmt.Sprintf("Survey the fundamentals, applications, and current developments of %s.", theme),
	}
}

func logPlan(logger *log.Logger, runID string, plan *TaskPlan) {
	logger.Printf("run %s: plan ready with %d investigation point(s), %d quer(ies)",
		runID, len(plan.InvestigationPoints), len(plan.SearchQueries))
}
