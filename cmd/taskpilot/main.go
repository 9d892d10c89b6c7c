package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/codefionn/taskpilot/internal/config"
	"github.com/codefionn/taskpilot/internal/ident"
	"github.com/codefionn/taskpilot/internal/llm"
	"github.com/codefionn/taskpilot/internal/logger"
	"github.com/codefionn/taskpilot/internal/orchestrator"
	"github.com/codefionn/taskpilot/internal/pidfile"
	"github.com/codefionn/taskpilot/internal/planner"
	"github.com/codefionn/taskpilot/internal/server"
	"github.com/codefionn/taskpilot/internal/store"
	"github.com/codefionn/taskpilot/internal/tools"
)

type options struct {
	serve       bool
	listenAddr  string
	autoExecute bool
	showPlan    bool
	task        string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	opts, parseErr := parseArgs(os.Args[1:])
	if parseErr != nil {
		if errors.Is(parseErr, flag.ErrHelp) {
			return nil
		}
		return parseErr
	}

	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Environment overrides for logging.
	if envLevel := strings.TrimSpace(os.Getenv("TASKPILOT_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("TASKPILOT_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}
	if opts.autoExecute {
		cfg.AutoExecute = true
	}
	if opts.listenAddr != "" {
		cfg.ListenAddr = opts.listenAddr
	}

	var loggerInitialized bool
	defer func() {
		if !loggerInitialized {
			return
		}
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	loggerInitialized = true

	logger.Info("taskpilot starting")

	if !cfg.Enabled {
		return errors.New("taskpilot is disabled in the config (set \"enabled\": true)")
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	logger.Info("Using model %s via %s", client.ModelName(), cfg.Provider)

	registry := tools.NewRegistry(nil)
	tools.RegisterBuiltins(registry, nil)

	synth := planner.NewSynthesizer(client, registry, cfg.MaxSteps)
	orch := orchestrator.New(synth, registry, cfg)

	history, err := store.New(cfg.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("failed to open task history: %w", err)
	}
	defer history.Close()

	if opts.serve {
		return runServer(cfg, orch, registry, history)
	}
	return runOnce(cfg, orch, history, opts.task, opts.showPlan)
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("taskpilot", flag.ContinueOnError)
	fs.BoolVar(&opts.serve, "serve", false, "run the HTTP/WebSocket server")
	fs.StringVar(&opts.listenAddr, "listen", "", "listen address for -serve (overrides config)")
	fs.BoolVar(&opts.autoExecute, "yes", false, "execute the plan without asking for confirmation")
	fs.BoolVar(&opts.showPlan, "plan-only", false, "synthesize and print the plan, then exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: taskpilot [flags] <task description>\n")
		fmt.Fprintf(fs.Output(), "       taskpilot -serve [-listen addr]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.task = strings.TrimSpace(strings.Join(fs.Args(), " "))
	if !opts.serve && opts.task == "" {
		fs.Usage()
		return nil, errors.New("a task description is required")
	}
	return opts, nil
}

// runServer runs until interrupted.
func runServer(cfg *config.Config, orch *orchestrator.Orchestrator, registry *tools.Registry, history *store.Store) error {
	pid := pidfile.New(filepath.Join(filepath.Dir(cfg.HistoryDBPath), "taskpilot.pid"))
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer func() {
		if releaseErr := pid.Release(); releaseErr != nil {
			logger.Warn("Failed to release pidfile: %v", releaseErr)
		}
	}()

	srv := server.NewServer(cfg.ListenAddr, orch, registry, history)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Printf("taskpilot listening on http://%s (websocket at /ws)\n", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	return srv.Stop()
}

// runOnce synthesizes a plan for a single task, asks for confirmation on a
// terminal (unless auto-execute is on), executes it and prints the outcome.
func runOnce(cfg *config.Config, orch *orchestrator.Orchestrator, history *store.Store, description string, planOnly bool) error {
	unsubscribe := orch.SubscribeStatusUpdate(func(update orchestrator.StatusUpdate) {
		if update.Step == nil {
			return
		}
		switch update.Step.Status {
		case planner.StepRunning:
			fmt.Printf("  [%d] %s ...\n", update.Step.Index+1, update.Step.Title)
		case planner.StepCompleted:
			fmt.Printf("  [%d] %s done\n", update.Step.Index+1, update.Step.Title)
		case planner.StepFailed:
			fmt.Printf("  [%d] %s FAILED: %s\n", update.Step.Index+1, update.Step.Title, update.Step.Error)
		}
	})
	defer unsubscribe()

	ctx := context.Background()
	sessionID := ident.NewSessionID()

	fmt.Println("Analyzing task...")
	task, err := orch.StartTask(ctx, sessionID, ident.New("msg"), description)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	printPlan(task.Plan)

	if planOnly {
		orch.CancelTask()
		return nil
	}

	if !cfg.AutoExecute {
		ok, err := confirmExecution()
		if err != nil {
			return err
		}
		if !ok {
			orch.CancelTask()
			fmt.Println("Cancelled.")
			return nil
		}
	}

	execErr := orch.ConfirmAndExecute(ctx)

	final := orch.CurrentTask()
	if final != nil {
		if recErr := history.RecordTask(final); recErr != nil {
			logger.Warn("Failed to record task: %v", recErr)
		}
		if final.ResultSummary != "" {
			fmt.Println(final.ResultSummary)
		}
	}

	if execErr != nil {
		return fmt.Errorf("task failed: %w", execErr)
	}
	return nil
}

func printPlan(plan *planner.Plan) {
	if plan == nil {
		return
	}
	if plan.AnalysisSummary != "" {
		fmt.Printf("\n%s\n", plan.AnalysisSummary)
	}
	fmt.Printf("\nPlan (%d steps, complexity %d/10):\n", len(plan.Steps), plan.Complexity)
	for _, step := range plan.Steps {
		fmt.Printf("  %d. %s", step.Index+1, step.Title)
		if step.ToolName != "" {
			args := ""
			if len(step.ToolArgs) > 0 {
				if raw, err := json.Marshal(step.ToolArgs); err == nil {
					args = " " + string(raw)
				}
			}
			fmt.Printf("  [%s%s]", step.ToolName, args)
		}
		fmt.Println()
	}
	fmt.Println()
}

func confirmExecution() (bool, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		// Non-interactive input without -yes: refuse rather than guess.
		return false, errors.New("stdin is not a terminal; pass -yes to execute without confirmation")
	}

	fmt.Print("Execute this plan? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
