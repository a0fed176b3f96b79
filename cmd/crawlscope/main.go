// Package main wires together the crawlscope service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/api"
	"github.com/mkessler/crawlscope/internal/clock/system"
	"github.com/mkessler/crawlscope/internal/config"
	idgen "github.com/mkessler/crawlscope/internal/id/uuid"
	"github.com/mkessler/crawlscope/internal/importer"
	"github.com/mkessler/crawlscope/internal/logging"
	"github.com/mkessler/crawlscope/internal/metrics"
	"github.com/mkessler/crawlscope/internal/progress"
	"github.com/mkessler/crawlscope/internal/progress/sinks"
	"github.com/mkessler/crawlscope/internal/stats"
	"github.com/mkessler/crawlscope/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.ConnLifetime(),
	})
	if err != nil {
		logger.Fatal("connect postgres failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("apply migrations failed", zap.Error(err))
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("register import metrics failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{
		SubscriberBuffer: cfg.Import.SubscriberBuffer,
		Logger:           logger.Named("progress"),
	}, sinks.NewLogSink(logger.Named("progress")), promSink)

	clock := system.New()
	ids := idgen.New()

	manager := importer.NewManager(importer.Config{
		BatchSize:      cfg.Import.BatchSize,
		EmitEveryLines: cfg.Import.EmitEveryLines,
		EmitInterval:   cfg.EmitInterval(),
		Logger:         logger.Named("importer"),
	}, db, db, db, hub, clock, ids)

	statsSvc := stats.NewService(db, logger.Named("stats"))

	apiServer := api.NewServer(api.Config{
		UploadDir:      cfg.Import.UploadDir,
		MaxUploadBytes: cfg.Import.MaxUploadBytes,
	}, db, db, manager, statsSvc, hub, db, clock, ids, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Error("importer shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
