//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/config"
	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/llm"
	"hypermaps/server/internal/domain/publish"
	"hypermaps/server/internal/domain/session"
	"hypermaps/server/internal/infrastructure/auth"
	"hypermaps/server/internal/infrastructure/database"
	"hypermaps/server/internal/infrastructure/llmprovider"
	"hypermaps/server/internal/infrastructure/ratelimit"
	"hypermaps/server/internal/infrastructure/store/relational"
	"hypermaps/server/internal/interfaces/httpserver"
	"hypermaps/server/internal/interfaces/httpserver/handlers"
	v1 "hypermaps/server/internal/interfaces/httpserver/routes/v1"
)

func provideSessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Model:        cfg.CompletionModel,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}
}

func provideNotifier(cfg *config.Config, log zerolog.Logger) publish.Notifier {
	if cfg.PublishWebhookURL == "" {
		return nil
	}
	return publish.NewWebhookNotifier(cfg.PublishWebhookURL, log)
}

func provideLimiter() *ratelimit.FixedWindow {
	return nil
}

func provideHandlers(
	messages *handlers.MessageHandler,
	comments *handlers.CommentHandler,
	generation *handlers.GenerationHandler,
	graph *handlers.GraphHandler,
	completion *handlers.CompletionHandler,
	pub *handlers.PublishHandler,
	validator *auth.Validator,
) v1.Handlers {
	return v1.Handlers{
		Messages:   messages,
		Comments:   comments,
		Generation: generation,
		Graph:      graph,
		Completion: completion,
		Publish:    pub,
		Auth:       validator,
	}
}

// InitializeServer assembles the relational-backend server with wire.
func InitializeServer(cfg *config.Config, log zerolog.Logger) (*httpserver.Server, error) {
	wire.Build(
		database.Connect,
		relational.New,
		wire.Bind(new(chat.MessageStore), new(*relational.Store)),
		wire.Bind(new(chat.CommentStore), new(*relational.Store)),
		wire.Bind(new(publish.Store), new(*relational.Store)),
		llmprovider.NewClient,
		wire.Bind(new(llm.Provider), new(*llmprovider.Client)),
		provideSessionConfig,
		session.NewManager,
		provideNotifier,
		publish.NewService,
		provideLimiter,
		auth.NewValidator,
		handlers.NewMessageHandler,
		handlers.NewCommentHandler,
		handlers.NewGenerationHandler,
		handlers.NewGraphHandler,
		handlers.NewCompletionHandler,
		handlers.NewPublishHandler,
		handlers.NewHealthHandler,
		provideHandlers,
		httpserver.New,
	)
	return nil, nil
}
