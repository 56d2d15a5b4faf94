package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-adp-api/api/swagger"
	"github.com/noah-isme/sma-adp-api/internal/auth"
	"github.com/noah-isme/sma-adp-api/internal/extraction"
	"github.com/noah-isme/sma-adp-api/internal/handler"
	"github.com/noah-isme/sma-adp-api/internal/ingestion"
	"github.com/noah-isme/sma-adp-api/internal/lms"
	"github.com/noah-isme/sma-adp-api/internal/middleware"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/notify"
	"github.com/noah-isme/sma-adp-api/internal/orchestrator"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/internal/service"
	"github.com/noah-isme/sma-adp-api/internal/storage"
	"github.com/noah-isme/sma-adp-api/pkg/cache"
	"github.com/noah-isme/sma-adp-api/pkg/config"
	"github.com/noah-isme/sma-adp-api/pkg/database"
	"github.com/noah-isme/sma-adp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-adp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-adp-api/pkg/middleware/requestid"
)

// @title Examination Ingestion and Submission Core
// @version 1.0
// @description Bridges bulk-scanned examination papers into a Moodle-compatible LMS.
// @BasePath /api/v1
// @schemes http https

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

	if err := cfg.Validate(); err != nil {
		logr.Sugar().Fatalw("invalid configuration", "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	}

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, 30*time.Second, logr, true)
		defer redisClient.Close()
	}

	contentStore := storage.NewContentStore(cfg.Storage.UploadDir, db, logr)
	lmsClient := lms.NewClient(cfg.Moodle, logr)
	extractionClient := extraction.NewClient(cfg.Extraction, logr)

	sealer, err := auth.NewSealer(cfg.Encryption.Key)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialize token sealer", "error", err)
	}

	var notifier notify.Notifier
	if sg := notify.NewSendgridNotifier(cfg.Email, logr); sg != nil {
		notifier = sg
	} else {
		notifier = &notify.NoopNotifier{Logger: logr}
	}

	artifactRepo := repository.NewArtifactRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	queueRepo := repository.NewQueueRepository(db)

	staffService := auth.NewStaffService(staffRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	studentService := auth.NewStudentService(sessionRepo, mappingRepo, lmsClient, sealer, cfg.Session.ExpireHours)

	ingestionSvc := ingestion.New(contentStore, artifactRepo, auditRepo, extractionClient, cfg.Extraction.ConfidenceThreshold, logr)
	orch := orchestrator.New(artifactRepo, mappingRepo, sessionRepo, queueRepo, auditRepo, contentStore, lmsClient, studentService, notifier, logr)

	if bootstrapPassword := os.Getenv("ADMIN_BOOTSTRAP_PASSWORD"); bootstrapPassword != "" {
		bootstrapUsername := os.Getenv("ADMIN_BOOTSTRAP_USERNAME")
		if bootstrapUsername == "" {
			bootstrapUsername = "admin"
		}
		bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := staffService.Bootstrap(bootstrapCtx, bootstrapUsername, bootstrapPassword); err != nil {
			logr.Sugar().Errorw("admin bootstrap failed", "error", err)
		}
		bootstrapCancel()
	}

	authHandler := handler.NewAuthHandler(staffService, studentService)
	uploadHandler := handler.NewUploadHandler(ingestionSvc, artifactRepo, cacheSvc, cfg.Storage.MaxFileSizeBytes, logr)
	studentHandler := handler.NewStudentHandler(artifactRepo, contentStore, orch, cacheSvc)
	adminHandler := handler.NewAdminHandler(mappingRepo, artifactRepo, auditRepo, logr)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authGroup := api.Group("/auth")
	authGroup.POST("/staff/login", middleware.Audit(auditRepo, models.AuditActionStaffLogin), authHandler.StaffLogin)
	authGroup.POST("/student/login", middleware.Audit(auditRepo, models.AuditActionStudentLogin), authHandler.StudentLogin)
	authGroup.POST("/student/logout", middleware.StudentSession(studentService), middleware.Audit(auditRepo, models.AuditActionStudentLogout), authHandler.StudentLogout)

	// Upload and scan routes self-audit inside ArtifactRepository.Insert
	// (one entry per inserted row, UPLOAD_DUP on a dedup hit), so they are
	// not also wrapped in middleware.Audit — spec §8 property 6 requires
	// exactly one audit entry per mutating call.
	uploadGroup := api.Group("/upload", middleware.JWT(staffService))
	uploadGroup.POST("/single", uploadHandler.Single)
	uploadGroup.POST("/bulk", uploadHandler.Bulk)
	uploadGroup.GET("/all", uploadHandler.ListAll)
	uploadGroup.GET("/auto-processed", uploadHandler.ListAutoProcessed)

	extractGroup := api.Group("/extract", middleware.JWT(staffService))
	extractGroup.POST("/scan-upload", uploadHandler.ScanUpload)

	studentGroup := api.Group("/student", middleware.StudentSession(studentService), middleware.WithResponseMeta())
	studentGroup.GET("/dashboard", studentHandler.Dashboard)
	studentGroup.GET("/paper/:id/view", studentHandler.View)
	// Submit also self-audits inside the orchestrator (success/failure both
	// recorded there with the outcome in Result), so it isn't double-wrapped.
	studentGroup.POST("/submit/:id", studentHandler.Submit)

	// Admin handlers record their own audit entries (recordAudit), so these
	// routes are not also wrapped in middleware.Audit.
	adminGroup := api.Group("/admin", middleware.JWT(staffService), middleware.RequireAdmin())
	adminGroup.GET("/mappings", adminHandler.ListSubjectMappings)
	adminGroup.PUT("/mappings", adminHandler.UpsertSubjectMapping)
	adminGroup.DELETE("/mappings/:id", adminHandler.DeactivateSubjectMapping)
	adminGroup.GET("/username-map", adminHandler.ListUsernameMaps)
	adminGroup.PUT("/username-map", adminHandler.UpsertUsernameMap)
	adminGroup.DELETE("/username-map/:username", adminHandler.DeleteUsernameMap)
	adminGroup.GET("/audit", adminHandler.ListAudit)
	adminGroup.DELETE("/artifacts/:id", adminHandler.DeleteArtifact)
	adminGroup.GET("/export/csv", adminHandler.ExportCSV)
	adminGroup.GET("/export/pdf", adminHandler.ExportPDF)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	go runRetryWorker(workerCtx, cfg.Retry, queueRepo, orch, metricsSvc, logr)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logr.Info("shutting down")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// runRetryWorker periodically scans the submission queue for due rows and
// replays them through the orchestrator (spec §4.7's backoff contract).
func runRetryWorker(ctx context.Context, cfg config.RetryConfig, queueRepo *repository.QueueRepository, orch *orchestrator.Orchestrator, metricsSvc *service.MetricsService, logr *zap.Logger) {
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rows, err := queueRepo.DueRows(ctx, cfg.MaxAttempts)
			if err != nil {
				logr.Warn("retry worker: scan failed", zap.Error(err))
				continue
			}
			metricsSvc.SetRetryQueueDepth(int64(len(rows)))
			for _, row := range rows {
				orch.RetryDue(ctx, row)
			}
		}
	}
}
