package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/modelry/modelry/internal/database"
	"github.com/modelry/modelry/internal/tasks"
	"github.com/modelry/modelry/pkg/config"
	"github.com/modelry/modelry/pkg/queue"
	"github.com/modelry/modelry/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting modelry worker")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	srv := queue.NewServer(&cfg.Redis, 10)
	client := queue.NewClient(&cfg.Redis)

	handler := tasks.NewHandler(db, logger, cfg.Bootstrap.DefaultOrgID)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic enqueue of the store-wide consistency audit and the purge of
	// expired soft deletes.
	go func() {
		ticker := time.NewTicker(cfg.Audit.Interval())
		defer ticker.Stop()

		enqueue := func() {
			if task, err := tasks.NewConsistencyAuditTask(tasks.ConsistencyAuditPayload{}); err == nil {
				if _, err := client.EnqueueContext(ctx, task, asynq.Queue("maintenance")); err != nil {
					logger.Error("failed to enqueue consistency audit", "error", err)
				}
			}
			if task, err := tasks.NewPurgeDeletedTask(tasks.PurgeDeletedPayload{
				OlderThanDays: cfg.Audit.PurgeAfterDays,
			}); err == nil {
				if _, err := client.EnqueueContext(ctx, task, asynq.Queue("maintenance")); err != nil {
					logger.Error("failed to enqueue purge", "error", err)
				}
			}
		}

		enqueue()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				enqueue()
			}
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	<-ctx.Done()

	client.Close()
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
