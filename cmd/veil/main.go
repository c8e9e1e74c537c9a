package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/catalog"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/engine"
	"github.com/veilhq/veil/internal/events"
	"github.com/veilhq/veil/internal/logger"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/profile"
	"github.com/veilhq/veil/internal/server"
	"github.com/veilhq/veil/internal/vault"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Veil %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Veil",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	registry, err := pattern.NewRegistry(log.Logger)
	if err != nil {
		log.Fatal("Failed to load built-in patterns", zap.Error(err))
	}
	profiles := profile.NewManager(log.Logger)

	// Database-backed catalog is optional. Without it, custom patterns and
	// profiles live in memory and the session audit trail is disabled.
	var cat *catalog.Catalog
	if cfg.Catalog.DatabaseURL != "" {
		cat, err = catalog.Open(cfg.Catalog, log.Logger)
		if err != nil {
			log.Fatal("Failed to open catalog database", zap.Error(err))
		}
		defer cat.Close()
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	if err := loadPatterns(startupCtx, cfg, registry, cat); err != nil {
		cancelStartup()
		log.Fatal("Failed to load pattern set", zap.Error(err))
	}
	if cat != nil {
		loadStoredProfiles(startupCtx, profiles, cat, log)
	}
	cancelStartup()

	store, err := vault.Open(cfg.Vault, log.Logger)
	if err != nil {
		log.Fatal("Failed to open mapping store", zap.Error(err))
	}
	defer store.Close()

	hub := events.NewHub(cfg.Events, log.Logger)

	opts := []engine.Option{engine.WithEventSink(hub)}
	if cat != nil {
		opts = append(opts, engine.WithAuditor(cat))
	}
	eng := engine.New(cfg.Engine, cfg.Detection, cfg.Vault, registry, profiles, store, log.Logger, opts...)
	defer eng.Close()

	srv := server.New(cfg, eng, registry, profiles, cat, hub, log)

	// Config file edits reload the pattern set without a restart. Vault and
	// server settings still require a restart.
	if err := config.Watch(cfg, func(updated *config.Config) {
		if err := loadPatterns(context.Background(), updated, registry, cat); err != nil {
			log.Error("Pattern reload rejected, previous set stays active", zap.Error(err))
			return
		}
		log.Info("Pattern set reloaded", zap.Uint64("version", registry.Snapshot().Version()))
	}); err != nil {
		log.Warn("Config watching disabled", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// loadPatterns assembles the full pattern set: built-ins, then config file
// patterns, then catalog-persisted custom patterns, later sources replacing
// earlier ones by id.
func loadPatterns(ctx context.Context, cfg *config.Config, registry *pattern.Registry, cat *catalog.Catalog) error {
	merged := pattern.BuiltinPatterns()
	index := make(map[string]int, len(merged))
	for i, p := range merged {
		index[p.ID] = i
	}
	overlay := func(patterns []pattern.Pattern) {
		for _, p := range patterns {
			if i, ok := index[p.ID]; ok {
				merged[i] = p
			} else {
				index[p.ID] = len(merged)
				merged = append(merged, p)
			}
		}
	}

	overlay(cfg.Patterns)
	if cat != nil {
		stored, err := cat.LoadPatterns(ctx)
		if err != nil {
			return err
		}
		overlay(stored)
	}
	return registry.Load(merged)
}

// loadStoredProfiles layers catalog-persisted profiles over the built-ins.
func loadStoredProfiles(ctx context.Context, profiles *profile.Manager, cat *catalog.Catalog, log *logger.Logger) {
	stored, err := cat.LoadProfiles(ctx)
	if err != nil {
		log.Warn("Failed to load stored profiles", zap.Error(err))
		return
	}
	for _, p := range stored {
		if err := profiles.Put(p); err != nil {
			log.Warn("Skipping invalid stored profile", zap.String("profile", p.Name), zap.Error(err))
		}
	}
}

// performHealthCheck probes the running server, for container health checks.
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
