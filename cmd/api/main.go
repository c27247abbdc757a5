package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xelth-com/datalake/internal/app"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/handlers"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	syncCfg, err := config.LoadSyncConfig()
	if err != nil {
		log.Fatalf("Failed to load sync configuration: %v", err)
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	// 2. Database, connectors and one orchestrator per connection
	a, err := app.New(cfg, syncCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize data lake")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. HTTP router
	var gatherer prometheus.Gatherer
	if cfg.Server.MetricsEnabled {
		gatherer = a.Prometheus
	}
	router := handlers.NewRouter(handlers.Options{
		DB:       a.DB.DB,
		Manager:  a.Manager,
		Reader:   a.Reader,
		Hub:      a.Hub,
		Gatherer: gatherer,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		logger.Infof("🚀 Data lake API starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// 4. Sync engine. Start runs the initial full sync, so it goes after
	// the listener to keep /health answering.
	go a.Run(ctx)

	sig := <-shutdown
	logger.Warnf("⚠️ Received signal: %v. Shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}

	// stops the hub; sync runs drain inside Shutdown
	stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Database close error")
	}

	logger.Info("✅ Shutdown complete")
}
