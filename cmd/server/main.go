package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelry/modelry/internal/api"
	"github.com/modelry/modelry/internal/auth"
	"github.com/modelry/modelry/internal/database"
	"github.com/modelry/modelry/internal/store"
	"github.com/modelry/modelry/pkg/config"
	"github.com/modelry/modelry/pkg/util"
	"github.com/redis/go-redis/v9"
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

	logger.Info("starting modelry server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it the health endpoint skips the check.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	// Bootstrap the reserved default organization and, if configured, an
	// initial site administrator.
	elementStore := store.NewElementStore(db, logger)
	projectStore := store.NewProjectStore(db, logger, elementStore)
	orgStore := store.NewOrganizationStore(db, logger, projectStore, cfg.Bootstrap.DefaultOrgID)

	if _, err := orgStore.EnsureDefault(context.Background()); err != nil {
		logger.Error("failed to ensure default organization", "error", err)
		os.Exit(1)
	}
	if cfg.Bootstrap.AdminEmail != "" {
		if _, err := authService.EnsureSiteAdmin(
			context.Background(),
			cfg.Bootstrap.AdminEmail,
			cfg.Bootstrap.AdminPassword,
			cfg.Bootstrap.AdminName,
		); err != nil {
			logger.Error("failed to ensure site admin", "error", err)
			os.Exit(1)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		DB:            db,
		Redis:         redisClient,
		Logger:        logger,
		JWTService:    jwtService,
		AuthService:   authService,
		DefaultOrgID:  cfg.Bootstrap.DefaultOrgID,
		RateLimitReqs: cfg.RateLimit.Requests,
		RateLimitSecs: cfg.RateLimit.WindowSeconds,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
