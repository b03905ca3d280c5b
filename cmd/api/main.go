package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/docvault-api/api/swagger"
	"github.com/noah-isme/docvault-api/internal/handler"
	"github.com/noah-isme/docvault-api/internal/repository"
	"github.com/noah-isme/docvault-api/internal/service"
	"github.com/noah-isme/docvault-api/pkg/cache"
	"github.com/noah-isme/docvault-api/pkg/config"
	"github.com/noah-isme/docvault-api/pkg/database"
	"github.com/noah-isme/docvault-api/pkg/database/migration"
	"github.com/noah-isme/docvault-api/pkg/jobs"
	"github.com/noah-isme/docvault-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/docvault-api/pkg/middleware/cors"
	"github.com/noah-isme/docvault-api/pkg/signedurl"
	"github.com/noah-isme/docvault-api/pkg/storage"
	"github.com/noah-isme/docvault-api/pkg/tracing"
)

// @title DocVault API
// @version 1.0.0
// @description Versioned document storage with streamed and signed URL delivery.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logr)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logr.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := migration.Run(ctx, db, logr); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	signer, err := signedurl.NewSigner(cfg.SignedURL.Secret, cfg.SignedURL.TTL)
	if err != nil {
		return fmt.Errorf("init signer: %w", err)
	}

	var ledger *cache.OnceLedger
	if cfg.SignedURL.SingleUse {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close() //nolint:errcheck
		ledger = cache.NewOnceLedger(client, "signed-url:used:")
		logr.Info("single use signed urls enabled")
	}

	metrics := service.NewMetricsService()
	app := wire(cfg, db, blobs, signer, ledger, metrics, logr)

	app.activityQueue.Start(ctx)
	defer app.activityQueue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, app, metrics, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(corsmiddleware.Wrap(cfg.CORS.AllowedOrigins, router), "docvault-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

type application struct {
	documents     *handler.DocumentHandler
	health        *handler.MetricsHandler
	auth          *service.AuthService
	activityQueue *jobs.Queue
}

func wire(cfg *config.Config, db *sqlx.DB, blobs storage.Backend, signer *signedurl.Signer, ledger *cache.OnceLedger, metrics *service.MetricsService, logr *zap.Logger) *application {
	documentRepo := repository.NewDocumentRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	worker := service.NewActivityWorker(activityRepo, metrics, logr)
	queue := jobs.NewQueue("activity", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Activity.Workers,
		BufferSize: cfg.Activity.BufferSize,
		MaxRetries: cfg.Activity.MaxRetries,
		Logger:     logr,
	})
	activity := service.NewActivityRecorder(queue, metrics, logr)

	archivist := service.NewVersionArchivist(documentRepo, versionRepo, metrics, logr, service.VersionArchivistConfig{
		MaxRetries: cfg.Documents.VersionMaxRetries,
	})
	documents := service.NewDocumentService(documentRepo, versionRepo, archivist, projectRepo, blobs, activity, service.NewValidator(), logr, service.DocumentServiceConfig{
		MaxUploadSize: cfg.Documents.MaxUploadSize,
		Retention:     cfg.Documents.VersionRetention,
	})

	var claimer interface {
		Claim(ctx context.Context, token string, ttl time.Duration) (bool, error)
	}
	if ledger != nil {
		claimer = ledger
	}
	delivery := service.NewDeliveryService(documentRepo, archivist, blobs, signer, claimer, activity, metrics, logr, service.DeliveryConfig{
		LargeFileThreshold: cfg.Documents.LargeFileThreshold,
		PublicBaseURL:      cfg.PublicBaseURL,
		APIPrefix:          cfg.APIPrefix,
	})

	return &application{
		documents:     handler.NewDocumentHandler(documents, archivist, delivery, cfg.Documents.MaxUploadSize),
		health:        handler.NewMetricsHandler(metrics, db),
		auth:          service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}),
		activityQueue: queue,
	}
}
