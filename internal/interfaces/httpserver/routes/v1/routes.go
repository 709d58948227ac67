// Package v1 registers the versioned API routes.
package v1

import (
	"github.com/gin-gonic/gin"

	"hypermaps/server/internal/infrastructure/auth"
	"hypermaps/server/internal/interfaces/httpserver/handlers"
)

// Handlers bundles everything the v1 routes need.
type Handlers struct {
	Messages   *handlers.MessageHandler
	Comments   *handlers.CommentHandler
	Generation *handlers.GenerationHandler
	Graph      *handlers.GraphHandler
	Completion *handlers.CompletionHandler
	Publish    *handlers.PublishHandler
	Auth       *auth.Validator
}

// Register mounts the v1 API under /v1.
func Register(engine *gin.Engine, h Handlers) {
	v1 := engine.Group("/v1")
	v1.Use(h.Auth.Middleware())

	v1.POST("/messages", h.Messages.Create)
	v1.PATCH("/messages/:id", h.Messages.Update)
	v1.PUT("/messages/:id/position", h.Messages.Move)
	v1.DELETE("/messages/:id", h.Messages.Delete)
	v1.POST("/messages/:id/publish", h.Publish.Publish)
	v1.POST("/connections", h.Messages.Connect)

	v1.POST("/comments", h.Comments.Create)
	v1.DELETE("/comments/:id", h.Comments.Delete)

	v1.GET("/conversations/:id/messages", h.Messages.List)
	v1.GET("/conversations/:id/comments", h.Comments.List)
	v1.GET("/conversations/:id/graph", h.Graph.Get)
	v1.POST("/conversations/:id/generate", h.Generation.Generate)
	v1.POST("/conversations/:id/retry", h.Generation.Retry)
	v1.POST("/conversations/:id/cancel", h.Generation.Cancel)

	v1.POST("/ai-response", h.Completion.Proxy)
	v1.GET("/public/messages", h.Publish.ListPublic)
}
