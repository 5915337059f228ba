package core

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/reagent/internal/retry"
)

type reviewVerdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
	Target   string `json:"target"`
}

// runReviewer judges the current draft. Review never fails the run: when
// the verdict cannot be obtained the reviewer degrades to a generic revise
// request aimed at the writer, and the iteration bound still guarantees
// termination.
func (e *Engine) runReviewer(ctx context.Context, s *ResearchState) error {
	if s.Draft == "" {
		return &fatalError{kind: ErrKindDrafting, err: errors.New("reviewer reached without a draft")}
	}
	// Each verdict is a fresh human-in-the-loop juncture.
	s.ReviewConfirmed = false

	prompt := reviewPrompt(s)
	var raw string
	err := retry.Do(ctx, e.cfg.LLM.MaxRetries, time.Second, func(ctx context.Context) error {
		out, genErr := e.generateCached(ctx, prompt, map[string]interface{}{"temperature": 0.0})
		if genErr != nil {
			return genErr
		}
		raw = out
		return nil
	})
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}

	var verdict reviewVerdict
	if err == nil {
		err = decodeJSON(raw, &verdict)
	}
	if err != nil {
		e.logger.Printf("run %s: review failed (%v), degrading to a revise request", s.RunID, err)
		e.telemetry.RecordNodeExecution(string(NodeReviewer), "fallback")
		verdict = reviewVerdict{
			Approved: false,
			Feedback: "The review step could not be completed. Revise the draft for clarity, coverage of every investigation point, and accurate use of the cited evidence.",
			Target:   string(NodeWriter),
		}
	}

	if verdict.Approved {
		s.Approved = true
		s.Feedback = ""
		s.ReviseTarget = ""
		e.logger.Printf("run %s: draft approved at iteration %d", s.RunID, s.Iteration)
		return nil
	}
	s.Approved = false
	s.Feedback = verdict.Feedback
	if verdict.Target == string(NodeSupervisor) {
		s.ReviseTarget = NodeSupervisor
		s.ReplanRequested = true
		s.HumanInput = verdict.Feedback
	} else {
		s.ReviseTarget = NodeWriter
	}
	e.logger.Printf("run %s: revise requested toward %s at iteration %d", s.RunID, s.ReviseTarget, s.Iteration)
	return nil
}
