package router

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/one-chat/one-chat/common/config"
	"github.com/one-chat/one-chat/common/logger"
	"github.com/one-chat/one-chat/common/ratelimit"
	"github.com/one-chat/one-chat/controller"
	"github.com/one-chat/one-chat/middleware"
)

const (
	msgChatRateLimited   = "Rate limit exceeded. Please slow down."
	msgDeleteRateLimited = "Rate limit exceeded"
)

// SetRouter registers every route of the relay on server.
func SetRouter(server *gin.Engine, relay *controller.Relay, ledger ratelimit.Ledger) {
	server.Use(middleware.TrackInFlight())

	if config.StaticDir != "" {
		server.Use(static.Serve("/static", static.LocalFile(config.StaticDir, false)))
		logger.Logger.Info("serving static front-end from " + config.StaticDir)
	}
	if config.EnablePrometheusMetrics {
		server.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	server.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	server.GET("/", middleware.SecurityHeaders(), middleware.Identity(relay.Access, true), relay.Index)

	identified := server.Group("")
	identified.Use(middleware.Identity(relay.Access, false))
	chatLimit := middleware.RateLimit(ledger, msgChatRateLimited)

	// SSE must never pass through gzip
	identified.POST("/chat/stream", chatLimit, relay.ChatStream)

	api := identified.Group("")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		api.POST("/chat", chatLimit, relay.Chat)
		api.POST("/cancel_stream", relay.CancelStream)
		api.POST("/validate_code", relay.ValidateCode)
		api.POST("/set_model", relay.SetModel)
		api.POST("/clear_context", relay.ClearContext)

		api.GET("/conversations", relay.ListConversations)
		api.POST("/conversations", relay.CreateConversation)
		api.GET("/conversations/:id", relay.GetConversation)
		api.POST("/conversations/:id/message", relay.AddMessage)
		api.DELETE("/conversations/:id", middleware.RateLimit(ledger, msgDeleteRateLimited), relay.DeleteConversation)
		api.GET("/history", relay.History)

		api.POST("/upload_image", relay.UploadImage)
		api.POST("/upload_document", relay.UploadDocument)
		api.POST("/clear_document", relay.ClearDocument)
		api.POST("/generate_image", relay.GenerateImage)
		api.POST("/edit_image", relay.EditImage)
	}
}
