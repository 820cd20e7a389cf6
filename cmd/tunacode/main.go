// Command tunacode is a minimal terminal frontend for the request
// orchestrator: it reads prompts from stdin, streams responses, and asks
// for tool authorization inline.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	tunacode "github.com/ryumacodes/tunacode"
	"github.com/ryumacodes/tunacode/internal/config"
	"github.com/ryumacodes/tunacode/internal/render"
	"github.com/ryumacodes/tunacode/observer"
	"github.com/ryumacodes/tunacode/provider/resolve"
	"github.com/ryumacodes/tunacode/store/postgres"
	"github.com/ryumacodes/tunacode/store/sqlite"
	"github.com/ryumacodes/tunacode/tools/file"
	"github.com/ryumacodes/tunacode/tools/shell"
)

func main() {
	configPath := flag.String("config", "", "path to tunacode.toml")
	planMode := flag.Bool("plan", false, "start in plan mode")
	yolo := flag.Bool("yolo", false, "auto-approve every tool")
	flag.Parse()

	cfg := config.Load(*configPath)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		costFn tunacode.CostFn
		tracer tunacode.Tracer
	)
	pricing := make(map[string]observer.ModelPricing, len(cfg.Pricing))
	for model, p := range cfg.Pricing {
		pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
	}
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx, pricing)
		if err != nil {
			logger.Error("observer init failed", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
		costFn = inst.Cost.CostFn()
		tracer = observer.NewTracer()
	} else {
		costFn = observer.NewCostCalculator(pricing).CostFn()
	}

	workspace := cfg.WorkspacePath
	if workspace == "" {
		workspace, _ = os.Getwd()
	}

	session := tunacode.NewSessionState(cfg.Session())
	session.SetPlanMode(*planMode)
	session.SetYolo(cfg.Yolo || *yolo)
	for _, name := range cfg.ToolIgnore {
		session.AddToolIgnore(name)
	}
	session.PlanApproval = approvePlan

	registry := tunacode.NewToolRegistry()
	tunacode.RegisterBuiltins(registry, session)
	registry.MustRegister(&file.ReadFile{Workspace: workspace})
	registry.MustRegister(&file.ListDir{Workspace: workspace})
	registry.MustRegister(&file.Grep{Workspace: workspace})
	registry.MustRegister(&file.WriteFile{Workspace: workspace})
	registry.MustRegister(&shell.Bash{Workspace: workspace})

	cache := tunacode.NewAgentCache(resolve.AgentBuilder(registry.Schemas(), logger), logger)

	streamer := tunacode.NewStreamer(func(partial string) {
		fmt.Print("\r\x1b[2K" + lastLine(partial))
	}, logger)

	orch := tunacode.NewRequestOrchestrator(session, cache, registry, authorize,
		tunacode.WithStreamer(streamer),
		tunacode.WithTracer(tracer),
		tunacode.WithLogger(logger),
		tunacode.WithCostFn(costFn),
		tunacode.WithMaxIterations(cfg.MaxIterations),
		tunacode.WithToolResultHook(func(tool string, _ json.RawMessage, _ string, d time.Duration) {
			fmt.Printf("\n[%s · %dms]\n", tool, d.Milliseconds())
		}),
	)

	snapStore := openSnapshotStore(ctx, cfg, logger)
	if snapStore != nil {
		defer snapStore.Close()
	}

	fmt.Printf("tunacode · model %s · workspace %s\n", session.CurrentModel, workspace)
	for {
		fmt.Print("\n> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			break
		}
		prompt := strings.TrimSpace(line)
		if prompt == "" {
			continue
		}
		if prompt == "/quit" || prompt == "/exit" {
			break
		}

		outcome, err := orch.ProcessRequest(ctx, prompt)
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Println(render.Terminal(outcome.FinalText, true))
		fmt.Println(render.Usage(outcome.Usage.PromptTokens, outcome.Usage.CompletionTokens, outcome.Usage.Cost))
		if outcome.AwaitingUserGuidance {
			fmt.Println("(iteration limit reached — reply to continue)")
		}

		if snapStore != nil {
			if err := snapStore.Save(ctx, tunacode.TakeSnapshot(session)); err != nil {
				logger.Warn("snapshot save failed", "error", err)
			}
		}
	}
}

// stdin is shared by the prompt loop and the interactive callbacks so no
// input is lost between competing buffers.
var stdin = bufio.NewReader(os.Stdin)

// authorize asks the user inline for tool approval.
func authorize(_ context.Context, tool string, args json.RawMessage) (tunacode.AuthDecision, error) {
	fmt.Printf("\nallow %s %s? [y]es / [n]o / [a]lways / [q]uit: ", tool, compact(args))
	line, err := stdin.ReadString('\n')
	if err != nil {
		return tunacode.AuthDecision{Abort: true}, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "":
		return tunacode.AuthDecision{Approved: true}, nil
	case "a", "always":
		return tunacode.AuthDecision{Approved: true, SkipFuture: true}, nil
	case "q", "quit":
		return tunacode.AuthDecision{Abort: true}, nil
	default:
		return tunacode.AuthDecision{}, nil
	}
}

// approvePlan shows a plan and reads the verdict.
func approvePlan(_ context.Context, plan string) (bool, string, error) {
	fmt.Println("\n--- plan ---")
	fmt.Println(render.Terminal(plan, true))
	fmt.Print("--- approve? [y/n], or type feedback: ")
	line, err := stdin.ReadString('\n')
	if err != nil {
		return false, "", err
	}
	answer := strings.TrimSpace(line)
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, "", nil
	case "n", "no", "":
		return false, "", nil
	default:
		return false, answer, nil
	}
}

func openSnapshotStore(ctx context.Context, cfg config.Config, logger *slog.Logger) tunacode.SnapshotStore {
	var store tunacode.SnapshotStore
	switch cfg.Snapshot.Backend {
	case "sqlite":
		store = sqlite.New(cfg.Snapshot.Path, sqlite.WithLogger(logger))
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Snapshot.PostgresURL)
		if err != nil {
			logger.Warn("postgres snapshot store unavailable", "error", err)
			return nil
		}
		store = postgres.New(pool)
	default:
		return nil
	}
	if err := store.Init(ctx); err != nil {
		logger.Warn("snapshot store init failed", "error", err)
		return nil
	}
	return store
}

// compact renders tool args on one short line.
func compact(args json.RawMessage) string {
	s := string(args)
	if len(s) > 120 {
		s = s[:120] + "…"
	}
	return s
}

// lastLine returns the final line of accumulated stream text for the
// single-line live preview.
func lastLine(s string) string {
	if i := strings.LastIndexByte(strings.TrimRight(s, "\n"), '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
