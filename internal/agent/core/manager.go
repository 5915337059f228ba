package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/reagent/internal/checkpoint"
)

// Resume actions.
const (
	ActionResume = "resume"
	ActionReplan = "replan"
)

var (
	ErrRunActive      = errors.New("run is currently executing")
	ErrNotInterrupted = errors.New("run is not waiting for human input")
	ErrNotCompleted   = errors.New("run has not completed")
)

// StatusInfo is the external view of a run, derived from its checkpoint.
type StatusInfo struct {
	RunID         string    `json:"run_id"`
	Status        Status    `json:"status"`
	NextNode      Node      `json:"next_node,omitempty"`
	Iteration     int       `json:"iteration"`
	MaxIterations int       `json:"max_iterations"`
	HumanInLoop   bool      `json:"human_in_loop"`
	ResultCount   int       `json:"result_count"`
	DraftLength   int       `json:"draft_length"`
	Error         *RunError `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Manager owns run lifecycles: it launches engine loops, tracks which runs
// are live in this process, and serves control operations from checkpoints.
type Manager struct {
	engine      *Engine
	checkpoints checkpoint.Store
	logger      *log.Logger

	defaultIterations int

	mu      sync.Mutex
	running map[string]*runHandle
}

type runHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(engine *Engine, store checkpoint.Store, defaultIterations int, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[RUNS] ", log.LstdFlags)
	}
	return &Manager{
		engine:            engine,
		checkpoints:       store,
		logger:            logger,
		defaultIterations: defaultIterations,
		running:           make(map[string]*runHandle),
	}
}

// Start validates the request, persists the initial checkpoint, and launches
// the run in the background. It returns the run ID immediately. The run's
// context is derived from ctx, so cancelling ctx stops the engine at its
// next node boundary; callers whose runs must outlive them pass a detached
// context.
func (m *Manager) Start(ctx context.Context, theme string, maxIterations int, humanInLoop bool) (string, error) {
	if theme == "" {
		return "", fmt.Errorf("theme is required")
	}
	if maxIterations == 0 {
		maxIterations = m.defaultIterations
	}
	if maxIterations < 1 || maxIterations > 10 {
		return "", fmt.Errorf("max_iterations must be between 1 and 10, got %d", maxIterations)
	}

	runID := uuid.NewString()
	s := NewResearchState(runID, theme, maxIterations, humanInLoop)
	data, err := s.Snapshot()
	if err != nil {
		return "", err
	}
	if err := m.checkpoints.Save(ctx, runID, data); err != nil {
		return "", fmt.Errorf("persisting initial state: %w", err)
	}

	m.logger.Printf("run %s started: theme=%q max_iterations=%d human_in_loop=%v",
		runID, theme, maxIterations, humanInLoop)
	m.launch(ctx, s)
	return runID, nil
}

func (m *Manager) launch(parent context.Context, s *ResearchState) {
	ctx, cancel := context.WithCancel(parent)
	h := &runHandle{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.running[s.RunID] = h
	m.mu.Unlock()

	go func() {
		defer close(h.done)
		defer cancel()
		if _, err := m.engine.Run(ctx, s); err != nil {
			m.logger.Printf("run %s: engine stopped with persistence error: %v", s.RunID, err)
		}
		m.mu.Lock()
		delete(m.running, s.RunID)
		m.mu.Unlock()
	}()
}

func (m *Manager) load(ctx context.Context, runID string) (*ResearchState, error) {
	data, err := m.checkpoints.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return LoadSnapshot(data)
}

// Status reports a run's progress from its latest checkpoint.
func (m *Manager) Status(ctx context.Context, runID string) (StatusInfo, error) {
	s, err := m.load(ctx, runID)
	if err != nil {
		return StatusInfo{}, err
	}
	return StatusInfo{
		RunID:         s.RunID,
		Status:        s.Status,
		NextNode:      s.NextNode,
		Iteration:     s.Iteration,
		MaxIterations: s.MaxIterations,
		HumanInLoop:   s.HumanInLoop,
		ResultCount:   len(s.Results),
		DraftLength:   len(s.Draft),
		Error:         s.Error,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}, nil
}

// Resume continues an interrupted run. Action "resume" confirms the pending
// juncture and proceeds to the checkpointed next node; "replan" routes back
// to the supervisor with the human input as planning guidance. As with
// Start, the relaunched run's context is derived from ctx.
func (m *Manager) Resume(ctx context.Context, runID, humanInput, action string) error {
	m.mu.Lock()
	_, active := m.running[runID]
	m.mu.Unlock()
	if active {
		return ErrRunActive
	}

	s, err := m.load(ctx, runID)
	if err != nil {
		return err
	}
	if s.Status != StatusInterrupted {
		return fmt.Errorf("%w: status is %s", ErrNotInterrupted, s.Status)
	}

	switch action {
	case "", ActionResume:
		s.HumanInput = humanInput
		if s.NextNode == NodeResearcher {
			s.PlanConfirmed = true
		} else {
			s.ReviewConfirmed = true
		}
	case ActionReplan:
		s.HumanInput = humanInput
		s.ReplanRequested = true
		s.NextNode = NodeSupervisor
	default:
		return fmt.Errorf("unknown resume action %q", action)
	}

	s.Status = StatusProcessing
	data, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := m.checkpoints.Save(ctx, runID, data); err != nil {
		return fmt.Errorf("persisting resumed state: %w", err)
	}
	m.logger.Printf("run %s resumed: action=%s next=%s", runID, action, s.NextNode)
	m.launch(ctx, s)
	return nil
}

// Result returns the final report of a completed run.
func (m *Manager) Result(ctx context.Context, runID string) (string, *ResearchState, error) {
	s, err := m.load(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	if s.Status != StatusCompleted {
		return "", nil, fmt.Errorf("%w: status is %s", ErrNotCompleted, s.Status)
	}
	return s.Draft, s, nil
}

// Cancel stops a run. A live run is cancelled cooperatively at its next node
// boundary; a checkpointed non-terminal run is marked failed directly.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	m.mu.Lock()
	h, active := m.running[runID]
	m.mu.Unlock()
	if active {
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.logger.Printf("run %s cancelled", runID)
		return nil
	}

	s, err := m.load(ctx, runID)
	if err != nil {
		return err
	}
	if s.Terminal() {
		return nil
	}
	s.Status = StatusFailed
	s.NextNode = ""
	s.Error = &RunError{Kind: ErrKindCancelled, Message: "run cancelled by request"}
	data, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := m.checkpoints.Save(ctx, runID, data); err != nil {
		return err
	}
	m.logger.Printf("run %s cancelled while suspended", runID)
	return nil
}

// Delete removes a run and its checkpoint. Live runs are cancelled first.
func (m *Manager) Delete(ctx context.Context, runID string) error {
	if err := m.Cancel(ctx, runID); err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return err
	}
	return m.checkpoints.Delete(ctx, runID)
}

// List returns the IDs of all checkpointed runs.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.checkpoints.List(ctx)
}

// Wait blocks until the run's engine loop exits. Used by the one-shot CLI
// and by tests.
func (m *Manager) Wait(ctx context.Context, runID string) error {
	m.mu.Lock()
	h, active := m.running[runID]
	m.mu.Unlock()
	if !active {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
