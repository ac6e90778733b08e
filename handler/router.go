package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/course-assistant/middleware"
	"github.com/tieubaoca/course-assistant/service"
)

// Backend is everything the HTTP surface calls; *service.App implements it.
type Backend interface {
	AdminService
	service.ChatBackend
}

// NewRouter wires the admin, chat and document routes.
func NewRouter(backend Backend, dataDir string) *gin.Engine {
	corsHandler := NewCorsHandler()
	adminHandler := NewAdminHandler(backend)
	chatHandler := NewChatHandler(backend)
	documentHandler := NewDocumentHandler(dataDir)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger, corsHandler.CorsMiddleware)

	api := router.Group("/api")
	{
		api.GET("/status", adminHandler.HandleStatus)
		api.POST("/rebuild", adminHandler.HandleRebuild)
		api.GET("/rebuild/status", adminHandler.HandleRebuildStatus)
		api.POST("/chat", chatHandler.HandleChat)
		api.POST("/ping", chatHandler.HandlePing)
		api.GET("/documents", documentHandler.ServeDocument)
	}
	router.GET("/ws", chatHandler.HandleWebSocket)
	return router
}
