package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kallt/toolgate/internal/audit"
	"github.com/kallt/toolgate/internal/bus"
	"github.com/kallt/toolgate/internal/config"
	"github.com/kallt/toolgate/internal/hook"
	"github.com/kallt/toolgate/internal/metrics"
	"github.com/kallt/toolgate/internal/policy"
	"github.com/kallt/toolgate/internal/remote"
	"github.com/kallt/toolgate/internal/rulestore"
	"github.com/kallt/toolgate/internal/scheduler"
	"github.com/kallt/toolgate/internal/telemetry"
	"github.com/kallt/toolgate/pkg/call"
)

// batchEntry is one call in a batch file.
type batchEntry struct {
	ID   string    `yaml:"id,omitempty"`
	Tool string    `yaml:"tool"`
	Args yaml.Node `yaml:"args,omitempty"`
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <batch.yaml>",
		Short: "Execute a batch of tool calls under policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			mode, _ := cmd.Flags().GetString("mode")
			headless, _ := cmd.Flags().GetBool("non-interactive")
			return run(args[0], cfgPath, mode, headless)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().StringP("mode", "m", "", "Approval mode override (default, auto-edit, yolo, plan)")
	cmd.Flags().Bool("non-interactive", false, "Never prompt; unresolved calls use the configured default")
	return cmd
}

func run(batchPath, cfgPath, modeOverride string, headless bool) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if modeOverride != "" {
		cfg.Policy.Mode = modeOverride
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if headless {
		cfg.Policy.NonInteractive = true
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTraces(shutdownCtx)
	}()

	engineCfg, err := config.EngineConfig(cfg)
	if err != nil {
		return err
	}
	engineCfg.Logger = logger

	var store *rulestore.Store
	if cfg.Policy.RuleDB != "" {
		store, err = rulestore.Open(cfg.Policy.RuleDB)
		if err != nil {
			return err
		}
		defer store.Close()

		persisted, err := store.Load(ctx)
		if err != nil {
			return err
		}
		engineCfg.Rules = append(engineCfg.Rules, persisted...)
		engineCfg.Store = store
	}

	engine := policy.NewEngine(engineCfg)
	for _, h := range cfg.Policy.Hooks {
		engine.AddHookChecker(hook.NewExecHook(hook.ExecHookConfig{
			Name:    h.Name,
			Command: h.Command,
			Timeout: time.Duration(h.TimeoutSeconds) * time.Second,
			Logger:  logger,
		}))
	}
	confirmations := bus.New(logger)
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving workspace: %w", err)
	}
	registry := builtinRegistry(workspace)
	collector := metrics.New(prometheus.DefaultRegisterer)

	var auditLog *audit.Logger
	if cfg.Audit.Path != "" {
		f, err := os.OpenFile(cfg.Audit.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer f.Close()
		auditLog = audit.NewLogger(audit.LoggerConfig{Writer: f})
	}

	if engine.Interactive() {
		approver := newTerminalApprover(confirmations, logger)
		confirmations.Subscribe(bus.TopicApprovals, approver.handle)
	}

	if cfg.Listen != "" {
		srv := httpServer(cfg.Listen, confirmations, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	requests, err := loadBatch(batchPath)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		Registry: registry,
		Engine:   engine,
		Bus:      confirmations,
		Audit:    auditLog,
		Metrics:  collector,
		Logger:   logger,
	})

	batch, err := sched.Schedule(ctx, requests)
	if err != nil {
		return err
	}

	select {
	case <-batch.Done():
	case <-ctx.Done():
		batch.CancelAll()
		<-batch.Done()
	}

	return printResults(batch.Calls())
}

func loadConfig(cfgPath string) (*config.Config, error) {
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			// Running without a config file is fine; defaults apply.
			return config.Default(), nil
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBatch parses a YAML batch file into call requests. Entries
// without an explicit ID get a generated one.
func loadBatch(path string) ([]call.Request, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var entries []batchEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing batch file %s: %w", path, err)
	}

	requests := make([]call.Request, 0, len(entries))
	for i, e := range entries {
		if e.Tool == "" {
			return nil, fmt.Errorf("batch entry %d: tool is required", i)
		}
		args, err := yamlToJSON(e.Args)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		requests = append(requests, call.Request{
			ID:        id,
			ToolName:  e.Tool,
			Arguments: args,
		})
	}
	return requests, nil
}

// yamlToJSON re-encodes a YAML node as JSON for the tool argument payload.
func yamlToJSON(node yaml.Node) (json.RawMessage, error) {
	if node.IsZero() {
		return json.RawMessage(`{}`), nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding args: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding args: %w", err)
	}
	return raw, nil
}

func httpServer(addr string, confirmations *bus.Bus, logger *slog.Logger) *http.Server {
	bridge := remote.NewBridge(confirmations, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/approvals/ws", bridge.HandleWS)

	logger.Info("http surface listening", "addr", addr)
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func printResults(calls []scheduler.TrackedCall) error {
	failed := 0
	for _, tc := range calls {
		status := string(tc.Status)
		if tc.Status != call.StatusSuccess {
			failed++
		}
		fmt.Printf("%-12s %-20s %s\n", status, tc.Request.ToolName, summarize(tc))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d calls did not succeed", failed, len(calls))
	}
	return nil
}

func summarize(tc scheduler.TrackedCall) string {
	if tc.Response == nil {
		return ""
	}
	const max = 120
	content := tc.Response.Content
	if len(content) > max {
		content = content[:max] + "..."
	}
	return content
}
