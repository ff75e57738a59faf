package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-notify-api/internal/config"
	"github.com/noah-isme/portal-notify-api/internal/database"
	"github.com/noah-isme/portal-notify-api/internal/handler"
	"github.com/noah-isme/portal-notify-api/internal/middleware"
	"github.com/noah-isme/portal-notify-api/internal/models"
	"github.com/noah-isme/portal-notify-api/internal/repository"
	"github.com/noah-isme/portal-notify-api/internal/router"
	"github.com/noah-isme/portal-notify-api/internal/service"
	"github.com/noah-isme/portal-notify-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.ActivityRecord{}, &models.ActivityRead{}, &models.UserProfile{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	var responder ai.Responder
	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIResponder(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create assistant: %v", err)
		}
		responder = openAI
	} else {
		logger.Warn().Msg("openai api key not configured; assistant disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	activityRepo := repository.NewActivityRecordRepository(db)
	userRepo := repository.NewUserProfileRepository(db)

	store := service.NewActivityStore(activityRepo, redisClient, cfg.RealtimeChannel, natsConn, logger)
	aggregator := service.NewFeedAggregator(store, logger)
	tracker := service.NewReadTracker(store, aggregator, cfg.FeedWriteTimeout, logger)
	viewers := service.NewViewerResolver(userRepo, redisClient, cfg.RealtimeChannel, cfg.ProfileCacheTTL, logger)

	notificationService := service.NewNotificationService(aggregator, tracker, store, viewers, userRepo, service.NotificationServiceConfig{
		WriteTimeout: cfg.FeedWriteTimeout,
		RecentLimit:  cfg.FeedRecentLimit,
	}, logger)
	assistantService := service.NewAssistantService(responder, validate, logger)
	seedService := service.NewSeedService(activityRepo, userRepo, store, viewers, validate, cfg.SeedEnabled, cfg.SeedToken, logger)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	store.Start(rootCtx)
	aggregator.Start(rootCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		NotificationHandler: handler.NewNotificationHandler(notificationService, validate, logger, cfg.FeedStreamKeepAlive),
		ActivityFeedHandler: handler.NewActivityFeedHandler(notificationService, validate, logger),
		AssistantHandler:    handler.NewAssistantHandler(assistantService, logger),
		SeedHandler:         handler.NewSeedHandler(seedService, logger),
		AdminFeedHandler:    handler.NewAdminFeedHandler(aggregator, store, logger),
		Aggregator:          aggregator,
		Viewers:             viewers,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, func(ctx context.Context) {
		aggregator.Stop()
		if err := tracker.Wait(ctx); err != nil {
			logger.Warn().Err(err).Msg("pending read marks not flushed before shutdown")
		}
		cancelRoot()
	})
}

func waitForShutdown(app *fiber.App, drain func(ctx context.Context)) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	drain(ctx)

	log.Println("server stopped")
}
