package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buymart/dealflow-api/docs"
	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/database"
	"github.com/buymart/dealflow-api/internal/escrow"
	"github.com/buymart/dealflow-api/internal/http/handler"
	"github.com/buymart/dealflow-api/internal/http/middleware"
	"github.com/buymart/dealflow-api/internal/http/router"
	"github.com/buymart/dealflow-api/internal/jobs"
	"github.com/buymart/dealflow-api/internal/logger"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/service"
	"github.com/buymart/dealflow-api/internal/storage"
	"github.com/buymart/dealflow-api/internal/timeline"
	"go.uber.org/zap"
)

// @title Dealflow API
// @version 1.0
// @description Deal lifecycle, timeline, document and escrow tracking for marketplace transactions

// @contact.name API Support
// @contact.email support@buymart.io

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API Key for system operations
// @Security BearerAuth
// @Security ApiKeyAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	if basicCfg.App.Environment == "development" {
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	}

	// In staging/production secrets may come from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.AutoMigrate || cfg.Database.Driver == database.DriverSQLite {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("Database schema migrated", zap.String("driver", cfg.Database.Driver))
	}

	fileStorage, err := storage.NewStorage(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

	table := timeline.DefaultTable()
	if cfg.Timeline.TablePath != "" {
		table, err = timeline.LoadTable(cfg.Timeline.TablePath)
		if err != nil {
			return fmt.Errorf("failed to load timeline table: %w", err)
		}
		log.Info("Timeline table loaded", zap.String("path", cfg.Timeline.TablePath))
	}

	// Initialize repositories
	dealRepo := repository.NewDealRepository(db)
	historyRepo := repository.NewDealStatusHistoryRepository(db)
	numberRepo := repository.NewNumberSequenceRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	escrowAccountRepo := repository.NewEscrowAccountRepository(db)
	escrowTxnRepo := repository.NewEscrowTransactionRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize services
	locker := service.NewDealLocker()
	escrowClient := escrow.NewClient(&cfg.Escrow, log)

	notificationService := service.NewNotificationService(notificationRepo, log)
	activityService := service.NewActivityService(activityRepo, log)
	alertService := service.NewAlertService(dealRepo, milestoneRepo, notificationService, locker, cfg.Timeline.LookaheadDays, log)
	milestoneService := service.NewMilestoneService(db, milestoneRepo, dealRepo, activityService, alertService, table, locker, log)
	documentService := service.NewDocumentService(documentRepo, dealRepo, activityService, fileStorage, table, locker, cfg.Storage.MaxUploadBytes(), log)
	escrowService := service.NewEscrowService(db, escrowAccountRepo, escrowTxnRepo, dealRepo, escrowClient, activityService, locker, &cfg.Escrow, log)
	escrowPolicy := service.NewEscrowPolicy(nil, escrowService, log)
	dealService := service.NewDealService(
		db,
		dealRepo,
		historyRepo,
		numberRepo,
		milestoneService,
		documentService,
		activityService,
		alertService,
		escrowPolicy,
		table,
		locker,
		log,
	)
	timelineService := service.NewTimelineService(dealRepo, milestoneRepo, cfg.Timeline.LookaheadDays, log)

	// Initialize middleware
	authMiddleware := auth.NewMiddleware(cfg, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	rt := router.NewRouter(cfg, log, db, authMiddleware, rateLimiter, router.Handlers{
		Deal:         handler.NewDealHandler(dealService, log),
		Timeline:     handler.NewTimelineHandler(milestoneService, timelineService, alertService, log),
		Document:     handler.NewDocumentHandler(documentService, cfg.Storage.MaxUploadSizeMB, log),
		Escrow:       handler.NewEscrowHandler(escrowService, log),
		Notification: handler.NewNotificationHandler(notificationService, log),
	})

	// Background jobs
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(log)

		if err := jobs.RegisterAlertSweepJob(
			scheduler,
			alertService,
			log,
			cfg.Jobs.AlertSweepCron,
			cfg.Jobs.AlertSweepTimeoutDuration(),
		); err != nil {
			return fmt.Errorf("failed to register alert sweep job: %w", err)
		}
		if err := jobs.RegisterEscrowReconcileJob(
			scheduler,
			escrowService,
			log,
			cfg.Jobs.EscrowReconcileCron,
			cfg.Jobs.EscrowReconcileTimeoutDuration(),
			cfg.Jobs.RunOnStartup,
		); err != nil {
			return fmt.Errorf("failed to register escrow reconcile job: %w", err)
		}

		scheduler.Start()
		log.Info("Scheduler started", zap.Strings("jobs", scheduler.JobNames()))
	} else {
		log.Info("Background jobs disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
