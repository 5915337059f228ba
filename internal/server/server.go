package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/reagent/config"
	"github.com/mohammad-safakhou/reagent/internal/agent/core"
	"github.com/mohammad-safakhou/reagent/internal/agent/telemetry"
	"github.com/mohammad-safakhou/reagent/internal/cache"
	"github.com/mohammad-safakhou/reagent/internal/checkpoint"
	"github.com/mohammad-safakhou/reagent/provider"
	"github.com/mohammad-safakhou/reagent/tools/web_search"
)

// New assembles the HTTP API around a run manager.
func New(mgr *core.Manager, tele *telemetry.Telemetry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	rh := NewRunsHandler(mgr, tele)
	rh.Register(e.Group("/api/research"))
	return e
}

// Run wires the full dependency graph from config and serves the API until
// the listener fails.
func Run(ctx context.Context, cfg *config.Config) error {
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	llm, err := provider.NewLLMProvider(cfg.LLM, tele)
	if err != nil {
		return err
	}
	searcher, err := web_search.NewWebSearcher(cfg.Search)
	if err != nil {
		return err
	}
	c, err := cache.New(cfg.Cache)
	if err != nil {
		return err
	}
	store, err := checkpoint.New(ctx, cfg.Checkpoint)
	if err != nil {
		return err
	}

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	engine := core.NewEngine(cfg, orchLogger, tele, llm, searcher, c, store)
	mgr := core.NewManager(engine, store, cfg.Orchestrator.MaxIterations, nil)

	e := New(mgr, tele)
	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10001"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
