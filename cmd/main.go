package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hatchpad/hatchpad-backend/internal/backends"
	neonadapter "github.com/hatchpad/hatchpad-backend/internal/backends/neon"
	neonclient "github.com/hatchpad/hatchpad-backend/internal/clients/neon"
	redisclient "github.com/hatchpad/hatchpad-backend/internal/clients/redis"
	"github.com/hatchpad/hatchpad-backend/internal/clients/sandbox"
	"github.com/hatchpad/hatchpad-backend/internal/data/db"
	"github.com/hatchpad/hatchpad-backend/internal/data/repos/projects"
	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/handlers"
	"github.com/hatchpad/hatchpad-backend/internal/middleware"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/envutil"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
	"github.com/hatchpad/hatchpad-backend/internal/secrets"
	"github.com/hatchpad/hatchpad-backend/internal/server"
	"github.com/hatchpad/hatchpad-backend/internal/services"
	"github.com/hatchpad/hatchpad-backend/internal/temporalx"
	"github.com/hatchpad/hatchpad-backend/internal/temporalx/temporalworker"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	projectRepo := projects.NewProjectRepo(thePG, log)
	versionRepo := projects.NewVersionRepo(thePG, log)
	secretRepo := projects.NewSecretRepo(thePG, log)

	// Secrets codec
	codec, err := secrets.NewCodecFromEnv(log)
	if err != nil {
		log.Error("Could not init secrets codec", "error", err)
		os.Exit(1)
	}

	// External clients
	log.Info("Setting up external clients...")
	progressBus, err := redisclient.NewProgressBus(log)
	if err != nil {
		log.Warn("Progress bus unavailable; workflow progress events disabled", "error", err)
		progressBus = nil
	}
	neonAPI, err := neonclient.NewClient(log, progressBus)
	if err != nil {
		log.Error("Could not init Neon client", "error", err)
		os.Exit(1)
	}
	sandboxClient, err := sandbox.NewClient(log)
	if err != nil {
		log.Error("Could not init sandbox client", "error", err)
		os.Exit(1)
	}

	// Backend adapters
	registry := backends.NewRegistry()
	registry.Register(types.BackendNeon, neonadapter.NewAdapter(neonAPI, log))

	// Temporal
	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Could not connect to Temporal", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := temporalworker.NewRunner(log, temporalClient, thePG, projectRepo, versionRepo, secretRepo, codec, registry, sandboxClient, nil, progressBus)
	if err != nil {
		log.Error("Could not build Temporal worker", "error", err)
		os.Exit(1)
	}
	if err := runner.Start(ctx); err != nil {
		log.Error("Temporal worker failed to start", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services...")
	versioningService := services.NewVersioningService(thePG, log, projectRepo, versionRepo, secretRepo, codec, registry, temporalClient)
	restoreService := services.NewRestoreService(thePG, log, projectRepo, versionRepo, secretRepo, codec, registry, sandboxClient, progressBus)

	// Handlers + router
	log.Info("Setting up router...")
	router := server.NewRouter(server.RouterConfig{
		VersionsHandler: handlers.NewVersionsHandler(versioningService, restoreService),
		RequestLog:      middleware.NewRequestLogMiddleware(log),
	})

	port := envutil.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
	if progressBus != nil {
		_ = progressBus.Close()
	}
}
