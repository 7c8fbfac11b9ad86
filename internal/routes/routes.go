package routes

import (
	"psyconsult-chat/internal/chat"
	"psyconsult-chat/internal/events"
	"psyconsult-chat/internal/handlers"
	"psyconsult-chat/internal/middleware"
	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the services the routes are built on.
type Dependencies struct {
	Sessions       *session.Manager
	Workspaces     *chat.Registry
	Bus            *events.Bus
	OriginPatterns []string
	Logger         *zap.Logger
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)
	contactHandler := handlers.NewContactHandler(deps.Workspaces)
	chatHandler := handlers.NewChatHandler(deps.Workspaces)
	messageHandler := handlers.NewMessageHandler(deps.Workspaces)
	eventHandler := handlers.NewEventHandler(deps.Workspaces, deps.Bus, deps.OriginPatterns, deps.Logger)

	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(deps.Sessions, false))
	{
		private.GET("/session", sessionHandler.GetSession)
		private.DELETE("/session", sessionHandler.Logout)

		private.GET("/contacts", contactHandler.GetContacts)

		chatRoutes := private.Group("/chats")
		{
			chatRoutes.GET("", chatHandler.ListChats)
			chatRoutes.POST("", chatHandler.StartChat)
			chatRoutes.GET("/:id", chatHandler.GetChat)
			// Only psychologists change status; participation is checked in the workspace
			chatRoutes.PUT("/:id/status", middleware.RoleAuthMiddleware(models.RolePsychologist), chatHandler.UpdateStatus)

			chatRoutes.GET("/:id/messages", messageHandler.ListMessages)
			chatRoutes.POST("/:id/messages", messageHandler.SendMessage)
			chatRoutes.POST("/:id/messages/file", messageHandler.SendFile)
			chatRoutes.DELETE("/:id/messages/:messageId", messageHandler.DeleteMessage)
		}
	}

	// Browsers cannot set headers on a websocket upgrade, so the token may
	// travel in the query string here.
	stream := router.Group("/api/v1")
	stream.Use(middleware.AuthMiddleware(deps.Sessions, true))
	stream.GET("/chats/:id/events", eventHandler.Stream)

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
