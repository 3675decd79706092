// Package main provides the entry point for keymesh-server.
//
// keymesh-server is the license activation service for KeyMesh:
// it issues time-boxed activation codes, redeems them against device
// bindings, and answers license verification queries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/yndnr/keymesh-go/internal/core/service"
	"github.com/yndnr/keymesh-go/internal/infra/buildinfo"
	"github.com/yndnr/keymesh-go/internal/infra/confloader"
	"github.com/yndnr/keymesh-go/internal/infra/shutdown"
	"github.com/yndnr/keymesh-go/internal/server/config"
	"github.com/yndnr/keymesh-go/internal/server/httpserver"
	"github.com/yndnr/keymesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/keymesh-go/internal/storage"
	"github.com/yndnr/keymesh-go/internal/storage/memory"
	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
	"github.com/yndnr/keymesh-go/pkg/crypto/seal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("keymesh-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting keymesh-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile,
		"in_memory", cfg.Storage.InMemory)

	// Telemetry registry; the storage engine adds its own gauges.
	metrics := metric.NewRegistry()

	store, backup, closeStore, err := initStorage(cfg, slogLogger, metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	metrics.Prometheus().MustRegister(metric.NewDeviceCollector(store))

	sealer, err := initSealer(cfg)
	if err != nil {
		return fmt.Errorf("init backup sealer: %w", err)
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		ActivationService: service.NewActivationService(store, nil, slogLogger),
		IssueService:      service.NewIssueService(store, nil, slogLogger),
		StatsService:      service.NewStatsService(store, slogLogger),
		Metrics:           metrics,
		Backup:            backup,
		Sealer:            sealer,
		Logger:            slogLogger,
		AdminNetworks:     cfg.Security.AdminNetworks,
		ActivateRPS:       cfg.Security.ActivateRPS,
		ActivateBurst:     cfg.Security.ActivateBurst,
		EnableAudit:       true,
	})

	httpServer := httpserver.New(cfg.Server.Listen, router, httpserver.ServerOptions{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing storage")
		return closeStore()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	// Hot log-level reload on config file changes.
	watcher, err := startConfigWatcher(*configFile, slogLogger)
	if err != nil {
		log.Warn("config watcher disabled", "error", err)
	} else if watcher != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return watcher.Stop()
		})
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger with code redaction.
func initLogger(cfg *config.ServerConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.SetDefault(log)
	return log, log.Slog(), nil
}

// initStorage selects and opens the activation store. The returned
// backup source is nil for in-memory storage.
func initStorage(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (service.Store, handler.BackupSource, func() error, error) {
	if cfg.Storage.InMemory {
		store := memory.New()
		return store, nil, func() error { return nil }, nil
	}

	storageCfg := storage.DefaultConfig(cfg.Storage.DataDir)
	storageCfg.SyncWrites = cfg.Storage.SyncWrites
	if cfg.Storage.GCInterval != "" {
		storageCfg.GCInterval = cfg.Storage.GCInterval
	}
	if cfg.Storage.GCThreshold > 0 {
		storageCfg.GCThreshold = cfg.Storage.GCThreshold
	}

	store, err := storage.NewBadgerStore(storageCfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	store.RegisterMetrics(metrics.Prometheus())

	return store, store, store.Close, nil
}

// initSealer builds the backup sealer when a key is configured.
func initSealer(cfg *config.ServerConfig) (*seal.Sealer, error) {
	if cfg.Security.BackupKey == "" {
		return nil, nil
	}
	return seal.NewFromHex(cfg.Security.BackupKey)
}

// startConfigWatcher watches the config file and applies log-level
// changes without a restart. Returns nil when no file is configured.
func startConfigWatcher(configFile string, log *slog.Logger) (*confloader.Watcher, error) {
	if configFile == "" {
		return nil, nil
	}

	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		return nil, err
	}

	watcher.OnChange(func(path string) {
		loader := confloader.NewLoader(confloader.WithConfigFile(path))
		cfg := config.Default()
		if err := loader.Load(cfg); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			log.Info("log level changed", "level", cfg.Log.Level)
			logger.SetLevel(cfg.Log.Level)
		}
	})

	watcher.StartAsync()
	return watcher, nil
}
