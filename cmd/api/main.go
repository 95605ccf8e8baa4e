package main

import (
	"go.uber.org/zap"

	"renobroker/internal/events"
	"renobroker/internal/handler"
	"renobroker/internal/httpserver"
	"renobroker/internal/repository"
	"renobroker/internal/service/auth"
	escrowsvc "renobroker/internal/service/escrow"
	feesvc "renobroker/internal/service/fee"
	matchsvc "renobroker/internal/service/match"
	projectsvc "renobroker/internal/service/project"
	settingssvc "renobroker/internal/service/settings"
	"renobroker/pkg/config"
	"renobroker/pkg/db"
	"renobroker/pkg/logger"
	"renobroker/pkg/outbox"
	redisclient "renobroker/pkg/redis"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	log.Info("Starting api service...")

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	bidRepo := repository.NewBidRepository(dbConn, log)
	escrowRepo := repository.NewEscrowRepository(dbConn, log)
	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	feeRepo := repository.NewFeeRepository(dbConn, log)
	seqRepo := repository.NewSequenceRepository(dbConn, log)
	matchRunRepo := repository.NewMatchRunRepository(dbConn, log)
	notiRepo := repository.NewNotificationRepository(dbConn, log)
	outboxRepo := outbox.NewRepository(dbConn)

	sink := events.NewOutboxSink(outboxRepo, log)

	// Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret, log)
	projectService := projectsvc.NewService(projectRepo, bidRepo, seqRepo, sink, log)
	escrowService := escrowsvc.NewService(escrowRepo, milestoneRepo, seqRepo, sink, log)
	feeService := feesvc.NewService(feeRepo, seqRepo, sink, log)
	settingsService := settingssvc.NewService(cfg.Policy, rdb, log)
	matchService := matchsvc.NewService(projectService, escrowService, feeService, settingsService, matchRunRepo, sink, log)

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	projectHandler := handler.NewProjectHandler(projectService)
	bidHandler := handler.NewBidHandler(projectService)
	matchHandler := handler.NewMatchHandler(matchService)
	escrowHandler := handler.NewEscrowHandler(escrowService)
	feeHandler := handler.NewFeeHandler(feeService)
	settingsHandler := handler.NewSettingsHandler(settingsService)
	notificationHandler := handler.NewNotificationHandler(notiRepo)

	router := httpserver.NewRouter(
		authHandler,
		projectHandler,
		bidHandler,
		matchHandler,
		escrowHandler,
		feeHandler,
		settingsHandler,
		notificationHandler,
		cfg.JWT.Secret,
		dbConn,
	)

	log.Info("API listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("Server exited", zap.Error(err))
	}
}
