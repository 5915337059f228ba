package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/reagent/config"
	"github.com/mohammad-safakhou/reagent/internal/agent/telemetry"
	"github.com/mohammad-safakhou/reagent/internal/cache"
	"github.com/mohammad-safakhou/reagent/internal/checkpoint"
	"github.com/mohammad-safakhou/reagent/provider"
	"github.com/mohammad-safakhou/reagent/tools/web_search"
)

var tracer = otel.Tracer("reagent/agent")

// fatalError carries the run-level error kind a node failure maps to.
type fatalError struct {
	kind string
	err  error
}

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Engine executes the research graph for a single run at a time. It owns no
// run registry; Manager layers lifecycle control on top.
type Engine struct {
	cfg         *config.Config
	logger      *log.Logger
	telemetry   *telemetry.Telemetry
	llm         provider.LLMProvider
	searcher    web_search.WebSearcher
	cache       cache.Cache
	checkpoints checkpoint.Store
}

func NewEngine(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry, llm provider.LLMProvider, searcher web_search.WebSearcher, c cache.Cache, store checkpoint.Store) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		telemetry:   tele,
		llm:         llm,
		searcher:    searcher,
		cache:       c,
		checkpoints: store,
	}
}

// Run drives the state until it terminates or interrupts for human input.
// The state is checkpointed after every transition, so a crashed process can
// resume from the last settled node. Failures are captured in the state; the
// returned error is reserved for states that cannot even be persisted.
func (e *Engine) Run(ctx context.Context, s *ResearchState) (*ResearchState, error) {
	started := time.Now()
	node := s.NextNode
	if node == "" {
		node = NodeSupervisor
	}
	s.Status = StatusProcessing
	s.NextNode = node
	if err := e.save(ctx, s); err != nil {
		return s, err
	}

	for {
		if err := ctx.Err(); err != nil {
			e.fail(s, ErrKindCancelled, fmt.Sprintf("run cancelled before %s", node))
			e.finish(s, started)
			return s, e.save(context.Background(), s)
		}

		// A drafting pass is the unit of iteration. Charging it as the
		// pass begins keeps the counter within MaxIterations even when a
		// suspended revise edge is answered with a re-plan, and a
		// checkpoint pointing at the writer always means the pass has not
		// been counted yet.
		if node == NodeWriter && s.Iteration < s.MaxIterations {
			s.Iteration++
		}

		nodeCtx, span := tracer.Start(ctx, "agent."+string(node))
		span.SetAttributes(
			attribute.String("run_id", s.RunID),
			attribute.Int("iteration", s.Iteration),
		)
		err := e.exec(nodeCtx, node, s)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if err != nil {
			e.telemetry.RecordNodeExecution(string(node), "failed")
			kind := ErrKindPermanent
			var fe *fatalError
			switch {
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				kind = ErrKindCancelled
			case errors.As(err, &fe):
				kind = fe.kind
			}
			e.logger.Printf("run %s: node %s failed: %v", s.RunID, node, err)
			e.fail(s, kind, err.Error())
			e.finish(s, started)
			return s, e.save(context.Background(), s)
		}
		e.telemetry.RecordNodeExecution(string(node), "success")

		d := Route(s, node)
		if d.Terminal != "" {
			s.Status = d.Terminal
			s.NextNode = ""
			e.finish(s, started)
			e.logger.Printf("run %s: %s after %d iteration(s)", s.RunID, s.Status, s.Iteration)
			return s, e.save(ctx, s)
		}
		if d.Interrupt {
			s.Status = StatusInterrupted
			s.NextNode = d.Next
			e.logger.Printf("run %s: interrupted before %s, waiting for human input", s.RunID, d.Next)
			return s, e.save(ctx, s)
		}
		s.NextNode = d.Next
		if err := e.save(ctx, s); err != nil {
			// Progress beats durability here; the next successful save
			// supersedes this one.
			e.logger.Printf("run %s: checkpoint failed: %v", s.RunID, err)
		}
		node = d.Next
	}
}

func (e *Engine) exec(ctx context.Context, node Node, s *ResearchState) error {
	switch node {
	case NodeSupervisor:
		return e.runSupervisor(ctx, s)
	case NodeResearcher:
		return e.runResearcher(ctx, s)
	case NodeWriter:
		return e.runWriter(ctx, s)
	case NodeReviewer:
		return e.runReviewer(ctx, s)
	default:
		return fmt.Errorf("unknown node %q", node)
	}
}

func (e *Engine) fail(s *ResearchState, kind, message string) {
	s.Status = StatusFailed
	s.NextNode = ""
	s.Error = &RunError{Kind: kind, Message: message}
}

func (e *Engine) finish(s *ResearchState, started time.Time) {
	e.telemetry.RecordRun(string(s.Status), time.Since(started))
}

func (e *Engine) save(ctx context.Context, s *ResearchState) error {
	s.UpdatedAt = time.Now()
	data, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := e.checkpoints.Save(ctx, s.RunID, data); err != nil {
		return fmt.Errorf("checkpointing run %s: %w", s.RunID, err)
	}
	return nil
}

// generateCached memoizes LLM completions so a resumed run replays prior
// steps without re-spending tokens. Prompts embed all varying inputs, which
// makes the prompt hash a sound cache key.
func (e *Engine) generateCached(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
	key := cache.Key("llm", prompt)
	if data, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		e.telemetry.RecordCacheLookup("llm", true)
		return string(data), nil
	}
	e.telemetry.RecordCacheLookup("llm", false)
	out, err := e.llm.Generate(ctx, prompt, options)
	if err != nil {
		return "", err
	}
	if err := e.cache.Set(ctx, key, []byte(out), e.cfg.Cache.LLMTTL); err != nil {
		e.logger.Printf("llm cache write failed: %v", err)
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence, which chat models
// frequently wrap JSON payloads in despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeJSON parses a model response that is expected to be a JSON object,
// tolerating code fences and leading prose before the first brace.
func decodeJSON(raw string, v interface{}) error {
	cleaned := stripFences(raw)
	if i := strings.Index(cleaned, "{"); i > 0 {
		cleaned = cleaned[i:]
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decoding model response: %w", err)
	}
	return nil
}
