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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-print-api/api/swagger"
	"github.com/noah-isme/sma-print-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-print-api/internal/middleware"
	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/internal/repository"
	"github.com/noah-isme/sma-print-api/internal/service"
	"github.com/noah-isme/sma-print-api/pkg/cache"
	"github.com/noah-isme/sma-print-api/pkg/catalog"
	"github.com/noah-isme/sma-print-api/pkg/config"
	"github.com/noah-isme/sma-print-api/pkg/database"
	"github.com/noah-isme/sma-print-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-print-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-print-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-print-api/pkg/printing"
	"github.com/noah-isme/sma-print-api/pkg/storage"
)

// @title SMA Print API
// @version 1.0.0
// @description School print queue, monthly page quotas and equipment reservations.
// @BasePath /api/v1
// @schemes http
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
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, quota cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient)
	defer cacheRepo.Close() //nolint:errcheck

	shifts, err := catalog.LoadShifts(cfg.Catalog.ShiftsFile)
	if err != nil {
		return err
	}
	seed, err := catalog.LoadSeed(cfg.Catalog.SeedFile)
	if err != nil {
		return err
	}

	spool, err := storage.NewSpool(cfg.Printing.SpoolDir)
	if err != nil {
		return err
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)
	jobRepo := repository.NewPrintJobRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	reservationRepo := repository.NewReservationRepository(db)

	if err := service.NewSeedService(userRepo, quotaRepo, resourceRepo, logr).Apply(ctx, seed); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Quota.CacheTTL, logr, redisClient != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	quotaSvc := service.NewQuotaService(quotaRepo, userRepo, cacheSvc, metrics, validate, logr, service.QuotaServiceConfig{
		CacheTTL:      cfg.Quota.CacheTTL,
		FallbackLimit: cfg.Quota.FallbackLimit,
	})
	jobSvc := service.NewPrintJobService(jobRepo, quotaSvc, spool, nil, nil, metrics, validate, logr, service.PrintJobServiceConfig{
		MaxUploadBytes: cfg.Printing.MaxUploadBytes,
		KeepSpoolFiles: cfg.Printing.KeepSpoolFiles,
	})
	reservationSvc := service.NewReservationService(reservationRepo, resourceRepo, models.NewShiftCatalog(shifts), metrics, validate, logr)
	teacherSvc := service.NewTeacherService(userRepo, quotaSvc, validate, logr)
	resourceSvc := service.NewResourceService(resourceRepo, validate, logr)

	if cfg.Printing.WorkerEnabled {
		submitter := printing.NewLPSubmitter(printing.LPConfig{
			Command: cfg.Printing.LPCommand,
			Printer: cfg.Printing.Printer,
			Timeout: cfg.Printing.LPTimeout,
		})
		worker := service.NewPrintWorker(jobRepo, submitter, spool, metrics, logr, service.PrintWorkerConfig{
			PollInterval:   cfg.Printing.PollInterval,
			KeepSpoolFiles: cfg.Printing.KeepSpoolFiles,
		})
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("start print worker: %w", err)
		}
		defer worker.Stop()
		jobSvc.SetNotifier(worker)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())
	r.MaxMultipartMemory = cfg.Printing.MaxUploadBytes

	ops := handler.NewMetricsHandler(metrics,
		handler.ReadinessCheck{Name: "database", Check: db.PingContext},
		handler.ReadinessCheck{Name: "cache", Check: cacheRepo.Ping},
	)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		PrintJobs:    handler.NewPrintJobHandler(jobSvc, cfg.Printing.MaxUploadBytes),
		Quotas:       handler.NewQuotaHandler(quotaSvc),
		Reservations: handler.NewReservationHandler(reservationSvc),
		Admin:        handler.NewAdminHandler(teacherSvc, resourceSvc),
		AuditLog:     logr.Named("audit"),
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "worker", cfg.Printing.WorkerEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logr.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}
