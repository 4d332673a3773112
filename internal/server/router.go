package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hatchpad/hatchpad-backend/internal/handlers"
	"github.com/hatchpad/hatchpad-backend/internal/middleware"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/envutil"
)

type RouterConfig struct {
	VersionsHandler *handlers.VersionsHandler
	RequestLog      *middleware.RequestLogMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(envutil.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", nil), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	if cfg.RequestLog != nil {
		router.Use(cfg.RequestLog.Handler())
	}

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/projects/:id/versions/initialize", cfg.VersionsHandler.InitializeFirstVersion)
		api.POST("/projects/:id/versions/checkpoint", cfg.VersionsHandler.CreateCheckpoint)
		api.POST("/projects/:id/versions/:versionId/restore", cfg.VersionsHandler.RestoreVersion)
		api.GET("/projects/:id/versions", cfg.VersionsHandler.ListVersions)
		api.GET("/projects/:id/env", cfg.VersionsHandler.GetProjectEnv)
		api.DELETE("/projects/:id", cfg.VersionsHandler.DeleteProject)
	}

	return router
}
