package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prizmbets/pickem/config"
	"github.com/prizmbets/pickem/db"
	"github.com/prizmbets/pickem/espn"
	"github.com/prizmbets/pickem/handlers"
	"github.com/prizmbets/pickem/live"
	"github.com/prizmbets/pickem/repositories"
	api "github.com/prizmbets/pickem/routes"
	"github.com/prizmbets/pickem/scheduler"
	"github.com/prizmbets/pickem/services"
	"github.com/prizmbets/pickem/storage"
)

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера; обработчики пишут через slog.Default
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Time("season_start", cfg.SeasonStart),
	)

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	schemaCtx, cancelSchema := context.WithTimeout(appCtx, 30*time.Second)
	err = db.CreateSchema(schemaCtx, dbConn)
	cancelSchema()
	if err != nil {
		logger.Error("failed to create database schema", slog.Any("error", err))
		os.Exit(1)
	}

	// Хранилище логотипов пулов (Cloudflare R2) опционально
	var uploader storage.FileUploader
	if cfg.R2Enabled() {
		uploader, err = storage.NewR2Uploader(appCtx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("R2 uploader initialized")
	} else {
		logger.Warn("R2 is not configured, pool logo uploads are disabled")
	}

	// Live-обновления таблиц
	hub := live.NewHub(logger)
	go hub.Run(appCtx)

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	poolRepo := repositories.NewPostgresPoolRepository(dbConn)
	membershipRepo := repositories.NewPostgresMembershipRepository(dbConn)
	weekRepo := repositories.NewPostgresWeekRepository(dbConn)
	gameRepo := repositories.NewPostgresGameRepository(dbConn)
	pickRepo := repositories.NewPostgresPickRepository(dbConn)
	standingRepo := repositories.NewPostgresWeeklyStandingRepository(dbConn)

	// Инициализация сервисов
	calendar := services.NewSeasonCalendar(cfg.SeasonStart)
	espnClient := espn.NewClient(cfg.ESPNBaseURL, cfg.ESPNTimeout)

	authService := services.NewAuthService(userRepo)
	poolService := services.NewPoolService(dbConn, poolRepo, membershipRepo, userRepo, weekRepo, uploader, calendar, logger)
	pickService := services.NewPickService(dbConn, poolRepo, membershipRepo, weekRepo, gameRepo, pickRepo, logger)
	standingsService := services.NewStandingsService(dbConn, poolRepo, membershipRepo, weekRepo, gameRepo, pickRepo, standingRepo, hub, logger)
	scheduleService := services.NewScheduleService(dbConn, espnClient, weekRepo, gameRepo, poolRepo, standingsService, calendar, logger)
	logger.Info("services initialized")

	// Планировщик синхронизации расписания
	cronService, err := scheduler.SetupCron(scheduleService, scheduler.Specs{
		Sync:     cfg.SyncCron,
		Finalize: cfg.FinalizeCron,
	}, logger)
	if err != nil {
		logger.Error("failed to set up scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	cronService.Start()
	logger.Info("scheduler started", slog.String("sync", cfg.SyncCron), slog.String("finalize", cfg.FinalizeCron))

	// Первая синхронизация сразу, не дожидаясь cron
	go scheduler.RunSync(scheduleService, logger)

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, cfg.JWTSecretKey),
		Pool:      handlers.NewPoolHandler(poolService),
		Pick:      handlers.NewPickHandler(pickService, standingsService),
		NFL:       handlers.NewNFLHandler(scheduleService),
		Admin:     handlers.NewAdminHandler(scheduleService, standingsService),
		Health:    handlers.NewHealthHandler(dbConn),
		WebSocket: handlers.NewWebSocketHandler(hub, poolService),
	}, api.Options{
		JWTSecret:      cfg.JWTSecretKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		// Ждем завершения текущих cron-задач
		select {
		case <-cronService.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("scheduler jobs did not finish before shutdown timeout")
		}
		cancelApp()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
