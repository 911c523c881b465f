package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	httpin "github.com/tagmill/tagmill/internal/adapter/inbound/http"
	"github.com/tagmill/tagmill/internal/adapter/outbound/hub"
	"github.com/tagmill/tagmill/internal/adapter/outbound/memory"
	"github.com/tagmill/tagmill/internal/adapter/outbound/modulemd"
	"github.com/tagmill/tagmill/internal/adapter/outbound/rulesfile"
	"github.com/tagmill/tagmill/internal/adapter/outbound/sqlite"
	"github.com/tagmill/tagmill/internal/config"
	"github.com/tagmill/tagmill/internal/domain/tagging"
	"github.com/tagmill/tagmill/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tag resolution service",
	Long: `Start the tagmill event listener.

The server accepts module build events on POST /v1/events, resolves a
destination tag for each event against the rule catalog, and applies
the tag through the configured hub. Prometheus metrics are exposed on
/metrics and a health report on /health.

On Unix, SIGHUP reloads the rule catalog without a restart.

Examples:
  # Start with config file settings
  tagmill serve

  # Resolve tags but never apply them
  tagmill serve --dry-run`,
	RunE: runServe,
}

var serveDryRun bool

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "resolve destinations but skip tag application")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load without validation first so the CLI flag can override.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveDryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Write PID file so "tagmill stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("tagmill stopped")
	return nil
}

// run wires all components together and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Rule catalog with hot reload support.
	source := rulesfile.NewLoader(cfg.Rules.Path)
	resolver, err := service.NewResolverService(ctx, source, logger,
		service.WithCacheSize(cfg.Cache.Size))
	if err != nil {
		return fmt.Errorf("failed to load rule catalog: %w", err)
	}
	logger.Info("rule catalog loaded", "path", cfg.Rules.Path, "rules", resolver.CatalogSize())

	if sigs := reloadSignals(); len(sigs) > 0 {
		reloadCh := make(chan os.Signal, 1)
		signal.Notify(reloadCh, sigs...)
		defer signal.Stop(reloadCh)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-reloadCh:
					if err := resolver.Reload(ctx); err != nil {
						logger.Error("catalog reload failed, keeping previous catalog", "error", err)
						continue
					}
					logger.Info("rule catalog reloaded", "rules", resolver.CatalogSize())
				}
			}
		}()
	}

	// Tag history persistence with an async writer.
	store, err := newHistoryStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	history := service.NewHistoryService(store, logger,
		service.WithHistoryChannelSize(cfg.History.ChannelSize),
		service.WithHistoryBatchSize(cfg.History.BatchSize),
		service.WithHistoryFlushInterval(cfg.HistoryFlushInterval()))
	history.Start()
	defer history.Stop()

	// Event handling pipeline.
	taggingOpts := []service.TaggingOption{
		service.WithHistory(history),
		service.WithDryRun(cfg.DryRun),
	}
	if cfg.Modulemd.BaseURL != "" {
		taggingOpts = append(taggingOpts,
			service.WithDescriptorSource(modulemd.NewClient(cfg.Modulemd.BaseURL, cfg.ModulemdTimeout(), logger)))
	}
	if cfg.Hub.URL != "" {
		taggingOpts = append(taggingOpts,
			service.WithTagger(hub.NewClient(cfg.Hub.URL, cfg.Hub.Token, cfg.HubTimeout(), cfg.HubRetries(), logger)))
	} else if !cfg.DryRun {
		logger.Warn("no hub configured, running in dry-run mode")
	}
	handler := service.NewTaggingService(resolver, logger, taggingOpts...)

	transport := httpin.NewTransport(handler,
		httpin.WithAddr(cfg.Server.Addr),
		httpin.WithLogger(logger),
		httpin.WithHealthChecker(httpin.NewHealthChecker(resolver, history, Version)),
		httpin.WithMetricsSources(httpin.MetricsSources{
			CatalogSize:  resolver.CatalogSize,
			CacheSize:    resolver.CacheSize,
			HistoryDrops: history.DroppedRecords,
		}))

	logger.Info("tagmill started",
		"version", Version,
		"addr", cfg.Server.Addr,
		"dry_run", cfg.DryRun,
		"history_backend", cfg.History.Backend)

	return transport.Start(ctx)
}

// newHistoryStore opens the configured history backend.
func newHistoryStore(cfg *config.Config) (tagging.HistoryStore, error) {
	switch cfg.History.Backend {
	case "sqlite":
		return sqlite.NewHistoryStore(cfg.History.Path)
	default:
		return memory.NewHistoryStore(0), nil
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// pidFilePath returns the standard location for the tagmill PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".tagmill", "server.pid")
	}
	return filepath.Join(os.TempDir(), "tagmill-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
