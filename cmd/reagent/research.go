package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/reagent/config"
	"github.com/mohammad-safakhou/reagent/internal/agent/core"
	"github.com/mohammad-safakhou/reagent/internal/agent/telemetry"
	"github.com/mohammad-safakhou/reagent/internal/cache"
	"github.com/mohammad-safakhou/reagent/internal/checkpoint"
	"github.com/mohammad-safakhou/reagent/provider"
	"github.com/mohammad-safakhou/reagent/tools/web_search"
)

// researchCMD runs a single research task end to end and prints the report.
// Interactive confirmation junctures are not supported here; runs execute
// without human_in_loop.
func researchCMD() *cobra.Command {
	var cfgPath string
	var maxIterations int
	var outPath string
	var timeout time.Duration

	var research = &cobra.Command{
		Use:   "research [theme]",
		Short: "Run one research task and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

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

			engine := core.NewEngine(cfg, log.New(os.Stderr, "[ORCH] ", log.LstdFlags), tele, llm, searcher, c, store)
			mgr := core.NewManager(engine, store, cfg.Orchestrator.MaxIterations, log.New(os.Stderr, "[RUNS] ", log.LstdFlags))

			runID, err := mgr.Start(ctx, args[0], maxIterations, false)
			if err != nil {
				return err
			}
			if err := mgr.Wait(ctx, runID); err != nil {
				return err
			}
			report, state, err := mgr.Result(ctx, runID)
			if err != nil {
				info, statusErr := mgr.Status(ctx, runID)
				if statusErr == nil && info.Error != nil {
					return fmt.Errorf("run %s failed: %s: %s", runID, info.Error.Kind, info.Error.Message)
				}
				return err
			}

			fmt.Fprintf(os.Stderr, "run %s completed in %d iteration(s) with %d source(s)\n",
				runID, state.Iteration, len(state.Results))
			if outPath != "" {
				return os.WriteFile(outPath, []byte(report), 0o644)
			}
			fmt.Println(report)
			return nil
		},
	}
	research.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration bound (default from config)")
	research.Flags().StringVarP(&outPath, "out", "o", "", "write the report to a file instead of stdout")
	research.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "overall run timeout")
	research.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return research
}
