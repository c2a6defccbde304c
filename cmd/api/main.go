package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/api/handlers"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/auth"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/cache/redis"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/extract"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/ingestion"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/llm"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/metrics"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/middleware/ratelimit"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/middleware/security"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/retrieval"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/sqlite"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/vector/milvus"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/webhook"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/config"
	appLogger "github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting multi-tenant RAG API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	chunker, err := ingestion.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		appLogger.Fatal("Invalid chunking configuration", zap.Error(err))
	}

	notifier := webhook.NewNotifier(sqliteClient, time.Duration(cfg.Webhook.TimeoutSec)*time.Second)

	processor := ingestion.NewProcessor(
		sqliteClient, milvusClient, llmClient, notifier,
		extract.NewRegistry(), chunker, cfg.Ingestion.MinTextChars,
	)

	pipeline := retrieval.NewPipeline(
		sqliteClient, milvusClient, llmClient, llmClient,
		retrieval.NewTermOverlapReranker(), redisClient,
		retrieval.Config{
			TopK:          cfg.Retrieval.TopK,
			TopN:          cfg.Retrieval.TopN,
			PreviewLength: cfg.Retrieval.PreviewLength,
		},
	)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, PUT, DELETE, OPTIONS",
	}))

	rateLimiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer rateLimiter.Stop()

	authHandler := handlers.NewAuthHandler(sqliteClient, tokens)
	queryHandler := handlers.NewQueryHandler(pipeline, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor)
	webhookHandler := handlers.NewWebhookHandler(sqliteClient, notifier)
	adminHandler := handlers.NewAdminHandler(sqliteClient, milvusClient, cfg.Auth.AdminAPIKey)
	wsHandler := handlers.NewWebSocketHandler(pipeline, tokens)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "time": time.Now().Unix()})
	})
	app.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready"})
	})
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	protected := api.Group("", auth.Middleware(tokens), rateLimiter.Middleware())

	protected.Get("/auth/me", authHandler.Me)

	protected.Post("/query", queryHandler.HandleQuery)
	protected.Get("/query/logs", queryHandler.GetQueryLogs)

	protected.Post("/documents", documentHandler.Upload)
	protected.Get("/documents", documentHandler.List)
	protected.Get("/documents/:id", documentHandler.Get)
	protected.Patch("/documents/:id", documentHandler.UpdateMetadata)
	protected.Delete("/documents/:id", documentHandler.Delete)

	protected.Post("/webhooks", webhookHandler.Create)
	protected.Get("/webhooks", webhookHandler.List)
	protected.Get("/webhooks/:id", webhookHandler.Get)
	protected.Patch("/webhooks/:id", webhookHandler.Update)
	protected.Delete("/webhooks/:id", webhookHandler.Delete)
	protected.Post("/webhooks/:id/test", webhookHandler.Test)

	admin := api.Group("/admin", adminHandler.Middleware())
	admin.Get("/tenants", adminHandler.ListTenants)
	admin.Get("/tenants/:id/stats", adminHandler.TenantStats)
	admin.Delete("/tenants/:id", adminHandler.DeleteTenant)

	app.Get("/ws/query", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
