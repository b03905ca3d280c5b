package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/docvault-api/internal/middleware"
	"github.com/noah-isme/docvault-api/internal/service"
	"github.com/noah-isme/docvault-api/pkg/config"
	"github.com/noah-isme/docvault-api/pkg/logger"
	reqidmiddleware "github.com/noah-isme/docvault-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, metrics *service.MetricsService, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	r.GET("/health", app.health.Health)
	r.GET("/ready", app.health.Ready)
	r.GET("/metrics", app.health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Signed links carry their own credential.
	api.GET("/documents/:id/file", app.documents.SignedFile)

	docs := api.Group("/documents")
	docs.Use(middleware.JWT(app.auth))

	read := middleware.RequireRoles(middleware.ReadRoles...)
	write := middleware.RequireRoles(middleware.WriteRoles...)

	docs.GET("", read, app.documents.List)
	docs.POST("", write, app.documents.Create)
	docs.GET("/:id", read, app.documents.Get)
	docs.PATCH("/:id", write, app.documents.Update)
	docs.DELETE("/:id", write, app.documents.Delete)
	docs.GET("/:id/download", read, app.documents.Download)
	docs.POST("/:id/versions", write, app.documents.UploadVersion)
	docs.GET("/:id/versions", read, app.documents.ListVersions)
	docs.GET("/:id/versions/:versionId/download", read, app.documents.DownloadVersion)

	return r
}
