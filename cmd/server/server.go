package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"hypermaps/server/internal/config"
	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/llm"
	"hypermaps/server/internal/domain/publish"
	"hypermaps/server/internal/domain/session"
	"hypermaps/server/internal/infrastructure/auth"
	"hypermaps/server/internal/infrastructure/database"
	"hypermaps/server/internal/infrastructure/llmprovider"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/infrastructure/observability"
	"hypermaps/server/internal/infrastructure/ratelimit"
	"hypermaps/server/internal/infrastructure/store/hypergraph"
	"hypermaps/server/internal/infrastructure/store/relational"
	"hypermaps/server/internal/interfaces/httpserver"
	"hypermaps/server/internal/interfaces/httpserver/handlers"
	v1 "hypermaps/server/internal/interfaces/httpserver/routes/v1"
)

func main() {
	_ = godotenv.Overload(".env", ".env.local")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	var (
		messages    chat.MessageStore
		comments    chat.CommentStore
		publicStore publish.Store
	)
	switch cfg.StoreBackend {
	case config.StoreBackendHypergraph:
		store, err := hypergraph.Open(cfg.HypergraphPath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open hypergraph store")
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("hypergraph store close failed")
			}
		}()
		messages, comments, publicStore = store, store, store
	default:
		db, err := database.Connect(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		store := relational.New(db)
		messages, comments, publicStore = store, store, store
	}
	log.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	var provider llm.Provider = llmprovider.NewClient(cfg, log)

	manager := session.NewManager(messages, provider, session.Config{
		Model:        cfg.CompletionModel,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}, log)

	var limiter *ratelimit.FixedWindow
	if cfg.RateLimitEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		limiter = ratelimit.NewFixedWindow(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	validator, err := auth.NewValidator(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth")
	}

	var notifier publish.Notifier
	if cfg.PublishWebhookURL != "" {
		notifier = publish.NewWebhookNotifier(cfg.PublishWebhookURL, log)
	}
	publishService := publish.NewService(messages, publicStore, notifier, log)

	server := httpserver.New(cfg, v1.Handlers{
		Messages:   handlers.NewMessageHandler(messages, log),
		Comments:   handlers.NewCommentHandler(comments, log),
		Generation: handlers.NewGenerationHandler(manager, limiter, log),
		Graph:      handlers.NewGraphHandler(messages, comments, manager, log),
		Completion: handlers.NewCompletionHandler(provider, cfg, log),
		Publish:    handlers.NewPublishHandler(publishService, log),
		Auth:       validator,
	}, handlers.NewHealthHandler(provider), log)

	if err := server.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
