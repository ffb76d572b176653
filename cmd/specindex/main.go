// Command specindex runs the specindex MCP server.
//
// It communicates over stdio using JSON-RPC 2.0 (MCP protocol) by default,
// or over Streamable HTTP when configured, and maintains a live index of
// project components and tools on local disk under each project's
// .ai_reference/ directory.
//
// Optional environment variables:
//
//	SPECINDEX_CONFIG                     - path to a TOML config file
//	SPECINDEX_TRANSPORT                  - "stdio" (default) or "http"
//	SPECINDEX_PORT, SPECINDEX_HOST       - HTTP bind address (http mode)
//	SPECINDEX_CORS_ORIGINS               - comma-separated CORS origins
//	SPECINDEX_AUTH_TOKEN                 - bearer token required in http mode
//	SPECINDEX_LOG_LEVEL                  - debug, info, warn, error (default: info)
//	SPECINDEX_MONITOR_POLL_SECONDS       - Change Monitor poll cadence
//	SPECINDEX_MONITOR_THROTTLE_SECONDS   - Change Monitor reindex throttle
//	SPECINDEX_MONITOR_WATCH_ENABLED      - enable fsnotify wake signal
//	SPECINDEX_CACHE_TTL_SECONDS          - Unified Context Cache TTL
//	SPECINDEX_TASKBOARD_WORKERS          - Task Board worker count
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/emergent-company/specindex/internal/config"
	"github.com/emergent-company/specindex/internal/content"
	"github.com/emergent-company/specindex/internal/facade"
	"github.com/emergent-company/specindex/internal/indexengine"
	"github.com/emergent-company/specindex/internal/mcp"
	"github.com/emergent-company/specindex/internal/monitor"
	"github.com/emergent-company/specindex/internal/state"
	"github.com/emergent-company/specindex/internal/tools/access"
	contexttools "github.com/emergent-company/specindex/internal/tools/context"
	indextools "github.com/emergent-company/specindex/internal/tools/index"
	taskboardtools "github.com/emergent-company/specindex/internal/tools/taskboard"
	xreftools "github.com/emergent-company/specindex/internal/tools/xref"
	"github.com/emergent-company/specindex/internal/unifiedcontext"
	"github.com/emergent-company/specindex/internal/xref"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "specindex: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("SPECINDEX_CONFIG")
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}

	roots, err := resolveRoots(cfg, os.Args[1:])
	if err != nil {
		return fmt.Errorf("resolving allowed roots: %w", err)
	}

	statePath, err := processStatePath()
	if err != nil {
		return fmt.Errorf("resolving process state path: %w", err)
	}
	procState, err := state.LoadProcessState(statePath)
	if err != nil {
		return fmt.Errorf("loading process state: %w", err)
	}

	logger.Info("starting specindex",
		"version", version,
		"transport", cfg.Transport.Mode,
		"allowed_roots", roots.List(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := indexengine.New(logger)
	mon := monitor.New(logger, engine,
		time.Duration(cfg.Monitor.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Monitor.ThrottleIntervalSeconds)*time.Second,
		time.Duration(cfg.Monitor.PausedSleepSeconds)*time.Second,
		cfg.Monitor.WatchEnabled,
	)
	xrefBuilder := xref.New(logger)
	cache := unifiedcontext.New(time.Duration(cfg.Cache.TTLSeconds) * time.Second)

	registry := mcp.NewRegistry()

	tbConfig := facade.TaskBoardConfig{
		Workers:        cfg.TaskBoard.Workers,
		DefaultTimeout: time.Duration(cfg.TaskBoard.DefaultTimeoutSec) * time.Second,
		Retention:      time.Duration(cfg.TaskBoard.RetentionDays) * 24 * time.Hour,
	}
	fcd := facade.New(logger, roots, procState, engine, mon, xrefBuilder, cache, registry, tbConfig)

	registry.Register(access.NewListAllowedDirectories(fcd))
	registry.Register(access.NewCheckProjectAccess(fcd))

	registry.Register(indextools.NewInitializeLibrarian(fcd))
	registry.Register(indextools.NewGenerateLibrarian(fcd))
	registry.Register(indextools.NewQueryComponent(fcd))
	registry.Register(indextools.NewFindImplementation(fcd))
	registry.Register(indextools.NewFindRelatedFiles(fcd))
	registry.Register(indextools.NewInitializeToolIndex(fcd))
	registry.Register(indextools.NewInitializeAIDevToolkit(fcd))

	registry.Register(xreftools.NewBuildCrossReferences(fcd))

	registry.Register(contexttools.NewGetUnifiedContext(fcd))
	registry.Register(contexttools.NewFindRelatedTools(fcd))
	registry.Register(contexttools.NewFindRelatedComponents(fcd))

	registry.Register(taskboardtools.NewSubmitBackgroundTask(fcd))
	registry.Register(taskboardtools.NewGetTaskStatus(fcd))
	registry.Register(taskboardtools.NewGetTaskResult(fcd))
	registry.Register(taskboardtools.NewCancelTask(fcd))
	registry.Register(taskboardtools.NewListTasks(fcd))

	registry.RegisterPrompt(&content.GetStartedPrompt{})
	registry.RegisterPrompt(&content.BackgroundTaskPrompt{})

	registry.RegisterResource(&content.DomainModelResource{})
	registry.RegisterResource(&content.AccessPolicyResource{})
	registry.RegisterResource(&content.ToolReferenceResource{})

	// Scenario 6: restart recovery. Reindex and resume monitoring for every
	// project that was active when the process last exited, before serving
	// any requests.
	fcd.ResumeMonitoring()

	go mon.Run(ctx)

	server := mcp.NewServer(registry, mcp.ServerInfo{
		Name:    cfg.Server.Name,
		Version: version,
	}, logger)

	if cfg.Transport.Mode == "http" {
		return runHTTP(ctx, cfg, server, logger)
	}
	return server.Run(ctx)
}

func runHTTP(ctx context.Context, cfg *config.Config, server *mcp.Server, logger *slog.Logger) error {
	httpServer := mcp.NewHTTPServer(server, cfg.Transport.CORSOrigins, cfg.Transport.AuthToken, logger)

	addr := fmt.Sprintf("%s:%s", cfg.Transport.Host, cfg.Transport.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: httpServer.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// resolveRoots builds the allowed-roots policy from config plus any
// positional command-line arguments (directories not starting with "-").
// With neither, the parent of the executable's own directory is allowed.
func resolveRoots(cfg *config.Config, args []string) (*state.AllowedRoots, error) {
	paths := append([]string{}, cfg.Roots.Allowed...)
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		paths = append(paths, arg)
	}
	if len(paths) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		paths = append(paths, filepath.Dir(filepath.Dir(exe)))
	}
	return state.NewAllowedRoots(paths)
}

// processStatePath returns the path used to persist active-project state
// across restarts (I6).
func processStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "specindex", "process_state.json"), nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
