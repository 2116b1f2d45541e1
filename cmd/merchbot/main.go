package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"merchbot/internal/app/bot"
	"merchbot/internal/cache"
	"merchbot/internal/config"
	"merchbot/internal/domain"
	"merchbot/internal/gateway"
	events_http "merchbot/internal/handler/http/events"
	"merchbot/internal/infrastructure/database"
	kafka_infra "merchbot/internal/infrastructure/kafka"
	redis_infra "merchbot/internal/infrastructure/redis"
	"merchbot/internal/platform/openai"
	"merchbot/internal/platform/printify"
	"merchbot/internal/platform/slack"
	"merchbot/internal/processor"
	"merchbot/internal/repository/deadletter_repo"
	postgres_deadletter_repo "merchbot/internal/repository/deadletter_repo/postgres"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Merchbot starting...", zap.String("version", cfg.App.Version))

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Redis is only dialed when a component is configured to use it.
	var rdb *redis.Client
	if cfg.Gateway.DedupBackend == "redis" || cfg.Cache.Backend == "redis" {
		rdb, err = redis_infra.NewClient(rootCtx, redis_infra.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		appLogger.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	var dedupStore gateway.DedupStore
	if cfg.Gateway.DedupBackend == "redis" {
		dedupStore = gateway.NewRedisDedupStore(rdb)
	} else {
		dedupStore = gateway.NewMemoryDedupStore()
	}

	var cacheStore cache.Store
	var memoryStore *cache.MemoryStore
	if cfg.Cache.Backend == "redis" {
		cacheStore = cache.NewRedisStore(rdb)
	} else {
		memoryStore = cache.NewMemoryStore()
		cacheStore = memoryStore
	}

	responseCache := cache.New(cacheStore, cache.TTLs{
		Default:        cfg.Cache.DefaultTTL,
		AIResponse:     cfg.Cache.AIResponseTTL,
		Recommendation: cfg.Cache.RecommendationTTL,
		LogoAnalysis:   cfg.Cache.LogoAnalysisTTL,
	}, appLogger.With(zap.String("component", "Cache")))

	gw := gateway.New(gateway.Config{
		RateLimits: gateway.RateLimits{
			PerUser:    cfg.Gateway.PerUserPerMinute,
			PerChannel: cfg.Gateway.PerChannelPerMinute,
			Global:     cfg.Gateway.GlobalPerMinute,
		},
		DedupTTL:         cfg.Gateway.DedupTTL,
		BreakerThreshold: cfg.Gateway.BreakerThreshold,
		BreakerCooldown:  cfg.Gateway.BreakerCooldown,
		PruneInterval:    cfg.Gateway.PruneInterval,
	}, dedupStore, appLogger.With(zap.String("component", "Gateway")))

	var sinks []processor.DeadLetterSink
	var archive deadletter_repo.Repository
	if cfg.Postgres.Enabled {
		dbConfig := database.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
		}
		db, err := database.NewPostgresDB(dbConfig)
		if err != nil {
			appLogger.Fatal("Failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()

		m, err := migrate.New("file://migrations", dbConfig.MigrationDSN())
		if err != nil {
			appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			appLogger.Fatal("Failed to run database migrations", zap.Error(err))
		}
		appLogger.Info("Database migrations completed.")

		repo := postgres_deadletter_repo.NewDeadLetterRepository(db)
		archive = repo
		sinks = append(sinks, repo)
	}
	if cfg.Kafka.Enabled {
		publisher := kafka_infra.NewDeadLetterPublisher(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic,
			appLogger.With(zap.String("component", "DeadLetterPublisher")))
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	chatClient := slack.NewClient(cfg.Chat.BaseURL, cfg.Chat.BotToken,
		appLogger.With(zap.String("component", "ChatClient")))
	aiClient := openai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model,
		appLogger.With(zap.String("component", "AIClient")))
	catalogClient := printify.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.APIToken, cfg.Catalog.ShopID,
		appLogger.With(zap.String("component", "CatalogClient")))

	botService := bot.NewService(chatClient, aiClient, catalogClient, responseCache,
		cfg.Catalog.CallsPerMinute, cfg.AI.Model,
		appLogger.With(zap.String("component", "BotService")))

	proc := processor.New(processor.Config{
		Workers:         cfg.Processor.Workers,
		QueueSize:       cfg.Processor.QueueSize,
		MaxRetries:      cfg.Processor.MaxRetries,
		BackoffBase:     cfg.Processor.BackoffBase,
		BackoffUnit:     cfg.Processor.BackoffUnit,
		HandlerTimeout:  cfg.Processor.HandlerTimeout,
		PollInterval:    cfg.Processor.PollInterval,
		DeadLetterCap:   cfg.Processor.DeadLetterCap,
		MonitorInterval: cfg.Processor.MonitorInterval,
	}, processor.NewRouter(appLogger.With(zap.String("component", "Router"))),
		appLogger.With(zap.String("component", "Processor")),
		processor.WithNotifier(botService),
		processor.WithDeadLetterSinks(sinks...),
	)
	proc.RegisterHandler(domain.KindMessage, botService.HandleMessage)
	proc.RegisterHandler(domain.KindFileShared, botService.HandleFileShared)

	go proc.Run(rootCtx)
	go gw.Run(rootCtx)
	if memoryStore != nil {
		go memoryStore.Run(rootCtx)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	events_http.RegisterRoutes(r, gw, proc, events_http.StatsSources{
		Gateway:   gw,
		Processor: proc,
		Cache:     responseCache,
		Archive:   archive,
	}, cfg.Chat.SigningSecret, appLogger)

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Merchbot started", zap.String("address", server.Addr))

	<-sigChan

	appLogger.Info("Shutting down Merchbot...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}
	rootCancel()
	appLogger.Info("Merchbot stopped.")
}
