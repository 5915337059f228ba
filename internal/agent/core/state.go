package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Node identifies a state-transformation step in the research graph.
type Node string

const (
	NodeSupervisor Node = "supervisor"
	NodeResearcher Node = "researcher"
	NodeWriter     Node = "writer"
	NodeReviewer   Node = "reviewer"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusStarted     Status = "started"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Error kinds carried by a failed run.
const (
	ErrKindPlanning  = "PlanningError"
	ErrKindSearch    = "SearchPartialFailure"
	ErrKindDrafting  = "DraftingError"
	ErrKindReview    = "ReviewError"
	ErrKindCancelled = "CancelledError"
	ErrKindPermanent = "ProviderPermanentError"
)

// RunError is the structured terminal error of a failed run.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskPlan is the investigation plan produced by the supervisor.
type TaskPlan struct {
	Theme               string    `json:"theme"`
	InvestigationPoints []string  `json:"investigation_points"`
	SearchQueries       []string  `json:"search_queries"`
	PlanText            string    `json:"plan_text"`
	CreatedAt           time.Time `json:"created_at"`
}

// SearchResult is one normalized piece of collected evidence. URL is the
// deduplication key.
type SearchResult struct {
	Title          string  `json:"title"`
	Summary        string  `json:"summary"`
	URL            string  `json:"url"`
	Source         string  `json:"source"`
	PublishedDate  string  `json:"published_date,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// ResearchState is the single record threaded through a run. It is owned by
// one engine loop at a time; nodes mutate it in place and the engine
// checkpoints it after every transition.
type ResearchState struct {
	RunID         string         `json:"run_id"`
	Theme         string         `json:"theme"`
	MaxIterations int            `json:"max_iterations"`
	HumanInLoop   bool           `json:"human_in_loop"`

	TaskPlan *TaskPlan      `json:"task_plan,omitempty"`
	Results  []SearchResult `json:"collected_results"`
	Draft    string         `json:"draft,omitempty"`
	Feedback string         `json:"feedback,omitempty"`

	// Reviewer verdict for the current cycle.
	Approved     bool `json:"approved,omitempty"`
	ReviseTarget Node `json:"revise_target,omitempty"`

	Iteration int    `json:"iteration"`
	Status    Status `json:"status"`
	NextNode  Node   `json:"next_node,omitempty"`

	// Human-in-the-loop bookkeeping. HumanInput is consumed once by the
	// next node; the confirmation flags record which interrupt junctures
	// have already been answered.
	HumanInput      string `json:"human_input,omitempty"`
	ReplanRequested bool   `json:"replan_requested,omitempty"`
	PlanConfirmed   bool   `json:"plan_confirmed,omitempty"`
	ReviewConfirmed bool   `json:"review_confirmed,omitempty"`

	// NoNewEvidence is set when a researcher pass settles without adding
	// any result; the run proceeds with a best-effort draft.
	NoNewEvidence bool `json:"no_new_evidence,omitempty"`

	Error *RunError `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewResearchState creates the initial state for a run.
func NewResearchState(runID, theme string, maxIterations int, humanInLoop bool) *ResearchState {
	now := time.Now()
	return &ResearchState{
		RunID:         runID,
		Theme:         theme,
		MaxIterations: maxIterations,
		HumanInLoop:   humanInLoop,
		Status:        StatusStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MergeResults merges a batch into the collected results, deduplicating by
// URL. A duplicate with a higher relevance score replaces the existing entry
// in place, so first-discovery order is preserved for report rendering.
// Returns the number of newly added entries.
func (s *ResearchState) MergeResults(batch []SearchResult) int {
	index := make(map[string]int, len(s.Results))
	for i, r := range s.Results {
		index[r.URL] = i
	}
	added := 0
	for _, r := range batch {
		if r.URL == "" {
			continue
		}
		if i, ok := index[r.URL]; ok {
			if r.RelevanceScore > s.Results[i].RelevanceScore {
				s.Results[i] = r
			}
			continue
		}
		index[r.URL] = len(s.Results)
		s.Results = append(s.Results, r)
		added++
	}
	return added
}

// Terminal reports whether the run can no longer make progress on its own.
// interrupted is a suspend state, not terminal.
func (s *ResearchState) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Snapshot serializes the complete state for checkpointing.
func (s *ResearchState) Snapshot() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serializing state for run %s: %w", s.RunID, err)
	}
	return data, nil
}

// LoadSnapshot restores a state from a checkpoint snapshot.
func LoadSnapshot(data []byte) (*ResearchState, error) {
	var s ResearchState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding state snapshot: %w", err)
	}
	if s.RunID == "" {
		return nil, fmt.Errorf("state snapshot missing run_id")
	}
	return &s, nil
}
