package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nutrimama/nutrimama/internal/api"
	"github.com/nutrimama/nutrimama/internal/buildconfig"
	"github.com/nutrimama/nutrimama/internal/config"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/knowledge"
	"github.com/nutrimama/nutrimama/internal/service"
	"github.com/nutrimama/nutrimama/internal/store"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	backend, err := store.Open(ctx, store.OpenOptions{
		Backend:     config.StorageBackend(),
		DatabaseURL: config.DatabaseURL(),
		LocalPath:   config.LocalDBPath(),
		Passphrase:  config.LocalPassphrase(),
	})
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("backend", config.StorageBackend()), zap.Error(err))
	}
	defer backend.Close()
	logger.Info("storage ready", zap.String("backend", config.StorageBackend()))

	kb := knowledge.Default()
	if path := config.KnowledgePath(); path != "" {
		if kb, err = knowledge.Load(path); err != nil {
			logger.Fatal("failed to load knowledge base", zap.String("path", path), zap.Error(err))
		}
		logger.Info("knowledge base loaded", zap.String("path", path))
	}

	engine := service.NewEngine(backend.Profiles, kb, service.SettingsFromEnv(), logger)

	opts := api.OptionsFromEnv()
	opts.Ping = backend.Ping
	if opts.APIKey == "" {
		logger.Warn("API_KEY not set, /v1 routes are unauthenticated")
	}
	app := api.NewApp(engine, backend.Profiles, opts, logger)

	// Start background services
	app.Sweeper.SetInterval(config.SweepInterval())
	app.Sweeper.SetTTL(config.SymptomTTL())
	app.Sweeper.Start()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	app.RateLimiter.StartCleanup(cleanupCtx, 10*time.Minute)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	// Stop background services
	app.Sweeper.Stop()
	stopCleanup()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

var (
	_ domain.ProfileStore  = (*store.ProfileStore)(nil)
	_ domain.ProfileStore  = (*store.LocalStore)(nil)
	_ domain.ProfileStore  = (*store.MemoryStore)(nil)
	_ domain.KnowledgeBase = (*knowledge.Base)(nil)
)
