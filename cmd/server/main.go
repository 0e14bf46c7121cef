package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notify-svc/scheduler/internal/api"
	"github.com/notify-svc/scheduler/internal/cleaner"
	"github.com/notify-svc/scheduler/internal/config"
	"github.com/notify-svc/scheduler/internal/db"
	"github.com/notify-svc/scheduler/internal/dispatcher"
	"github.com/notify-svc/scheduler/internal/metrics"
	"github.com/notify-svc/scheduler/internal/session"
	"github.com/notify-svc/scheduler/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- sessions ----
	sessions, err := session.LoadOrGenerate(cfg.CookieKeyPath)
	if err != nil {
		logger.Fatal("failed to load session key", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := store.NewPostgres(pool, cfg.DBRequestTimeout)

	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	// ---- dispatcher ----
	mailFactory := dispatcher.NewMailFactory(cfg.MailServerAddr, cfg.MailServerName, config.NotifierUsername, cfg.NotifierSecret, cfg.MailOpTimeout)
	disp := dispatcher.New(s, mailFactory, cfg.DispatchTickInterval, logger, m.DispatcherHooks())
	go func() {
		if err := disp.Run(workerCtx); err != nil {
			logger.Error("dispatcher stopped", zap.Error(err))
		}
	}()

	// ---- account cleaner ----
	clnr := cleaner.New(s, cfg.AdminAddr, config.NotifierUsername, cfg.NotifierSecret, cfg.AdminRateLimit, cfg.AdminTimeout, cfg.CleanerInterval, cfg.MaxAccountAge, logger, m.CleanerHook())
	go clnr.Run(workerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(s, sessions, reg, logger)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all background workers to stop.
	cancelWorkers()

	// 3. Wait for the dispatcher's in-flight batch workers to finish.
	disp.Wait()

	logger.Info("server stopped cleanly")
}
