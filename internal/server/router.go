package server

import (
	"github.com/gin-gonic/gin"

	"github.com/amparolegal/amparo-backend/internal/http/handlers"
	"github.com/amparolegal/amparo-backend/internal/http/middleware"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *middleware.AuthMiddleware
	HealthHandler  *handlers.HealthHandler
	SessionHandler *handlers.SessionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(cfg.Log))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	router.GET("/readycheck", cfg.HealthHandler.ReadyCheck)

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		api.POST("/sessions", cfg.SessionHandler.CreateSession)
		api.GET("/sessions", cfg.SessionHandler.ListSessions)
		api.GET("/sessions/:id", cfg.SessionHandler.GetSession)
		api.GET("/sessions/:id/messages", cfg.SessionHandler.ListMessages)
		api.PATCH("/sessions/:id", cfg.SessionHandler.RenameSession)
		api.DELETE("/sessions/:id", cfg.SessionHandler.DeleteSession)
		api.POST("/sessions/:id/chat", cfg.SessionHandler.ChatTurn)
	}

	return router
}
