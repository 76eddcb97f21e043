package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/coinvault/internal/config"
	"github.com/dukerupert/coinvault/internal/database"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/logging"
	"github.com/dukerupert/coinvault/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer db.Close()

	pub, err := events.NewPublisher(cfg.Kafka, logger.With("component", "kafka"))
	if err != nil {
		slog.Error("failed to create event publisher", "error", err)
		os.Exit(1)
	}
	if kp, ok := pub.(*events.KafkaPublisher); ok {
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kp.EnsureTopic(topicCtx); err != nil {
			slog.Warn("ensure kafka topic", "error", err, "topic", cfg.Kafka.Topic)
		}
		cancel()
	}

	srv := server.New(cfg, db, pub, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.Cleanup(bgCtx, time.Now())
			case <-bgCtx.Done():
				return
			}
		}
	}()

	snapshots := srv.SnapshotManager()
	if snapshots.Enabled() {
		snapshots.Start(bgCtx)
	} else {
		slog.Info("snapshots disabled", "reason", "S3 or passphrase not configured")
	}

	go func() {
		slog.Info("coinvault starting", "addr", httpServer.Addr, "base_url", cfg.Server.BaseURL,
			"enforce_grant_expiry", cfg.Ledger.EnforceGrantExpiry)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	snapshots.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
