package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mohammad-safakhou/reagent/internal/agent/core"
	"github.com/mohammad-safakhou/reagent/internal/agent/telemetry"
	"github.com/mohammad-safakhou/reagent/internal/checkpoint"
)

var runsTracer = otel.Tracer("reagent/internal/server/runs")

// RunsHandler exposes the research run control surface.
type RunsHandler struct {
	mgr    *core.Manager
	tele   *telemetry.Telemetry
	logger *log.Logger
}

type startRequest struct {
	Theme         string `json:"theme"`
	MaxIterations int    `json:"max_iterations"`
	HumanInLoop   bool   `json:"human_in_loop"`
}

type resumeRequest struct {
	HumanInput string `json:"human_input"`
	Action     string `json:"action"` // resume (default) or replan
}

type resultResponse struct {
	RunID     string              `json:"run_id"`
	Theme     string              `json:"theme"`
	Report    string              `json:"report"`
	Iteration int                 `json:"iteration"`
	Approved  bool                `json:"approved"`
	Sources   []core.SearchResult `json:"sources"`
}

func NewRunsHandler(mgr *core.Manager, tele *telemetry.Telemetry) *RunsHandler {
	return &RunsHandler{
		mgr:    mgr,
		tele:   tele,
		logger: log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
	}
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("", h.start)
	g.GET("", h.list)
	g.GET("/stats", h.stats)
	g.GET("/:run_id", h.status)
	g.POST("/:run_id/resume", h.resume)
	g.POST("/:run_id/cancel", h.cancel)
	g.GET("/:run_id/result", h.result)
	g.DELETE("/:run_id", h.remove)
}

// start accepts a research request and launches it in the background.
func (h *RunsHandler) start(c echo.Context) error {
	ctx, span := runsTracer.Start(c.Request().Context(), "RunsHandler.start")
	defer span.End()

	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Theme = strings.TrimSpace(req.Theme)
	// The run outlives the request, so its context must not inherit the
	// request's cancellation.
	runID, err := h.mgr.Start(context.WithoutCancel(ctx), req.Theme, req.MaxIterations, req.HumanInLoop)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	span.SetAttributes(attribute.String("run_id", runID))
	return c.JSON(http.StatusAccepted, map[string]string{"run_id": runID})
}

// list returns the IDs of all known runs, newest first.
func (h *RunsHandler) list(c echo.Context) error {
	ids, err := h.mgr.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": ids})
}

// stats reports aggregate counts across all checkpointed runs plus token
// cost totals for this process.
func (h *RunsHandler) stats(c echo.Context) error {
	ctx := c.Request().Context()
	ids, err := h.mgr.List(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	byStatus := map[core.Status]int{}
	for _, id := range ids {
		info, err := h.mgr.Status(ctx, id)
		if err != nil {
			// Deleted between List and Status; skip.
			continue
		}
		byStatus[info.Status]++
	}
	tokens, cost := h.tele.Totals()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total_runs":     len(ids),
		"by_status":      byStatus,
		"total_tokens":   tokens,
		"estimated_cost": cost,
	})
}

// status reports a run's progress from its latest checkpoint.
func (h *RunsHandler) status(c echo.Context) error {
	info, err := h.mgr.Status(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return mapRunError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// resume continues an interrupted run with the supplied human input.
func (h *RunsHandler) resume(c echo.Context) error {
	ctx, span := runsTracer.Start(c.Request().Context(), "RunsHandler.resume")
	defer span.End()

	runID := c.Param("run_id")
	span.SetAttributes(attribute.String("run_id", runID))
	var req resumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.mgr.Resume(context.WithoutCancel(ctx), runID, req.HumanInput, req.Action); err != nil {
		return mapRunError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"run_id": runID, "status": "resuming"})
}

// cancel stops a run at its next node boundary.
func (h *RunsHandler) cancel(c echo.Context) error {
	runID := c.Param("run_id")
	if err := h.mgr.Cancel(c.Request().Context(), runID); err != nil {
		return mapRunError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"run_id": runID, "status": "cancelled"})
}

// result returns the final report of a completed run.
func (h *RunsHandler) result(c echo.Context) error {
	report, state, err := h.mgr.Result(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return mapRunError(err)
	}
	return c.JSON(http.StatusOK, resultResponse{
		RunID:     state.RunID,
		Theme:     state.Theme,
		Report:    report,
		Iteration: state.Iteration,
		Approved:  state.Approved,
		Sources:   state.Results,
	})
}

// remove cancels a run if needed and deletes its checkpoint.
func (h *RunsHandler) remove(c echo.Context) error {
	runID := c.Param("run_id")
	if err := h.mgr.Delete(c.Request().Context(), runID); err != nil {
		return mapRunError(err)
	}
	h.logger.Printf("run %s deleted", runID)
	return c.NoContent(http.StatusNoContent)
}

func mapRunError(err error) error {
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	case errors.Is(err, core.ErrRunActive),
		errors.Is(err, core.ErrNotInterrupted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotCompleted):
		// The run exists but is not in a state that can serve a result.
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
