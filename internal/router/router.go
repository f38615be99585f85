package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pomodoro/bot/internal/handler"
	"pomodoro/bot/internal/middleware"
	"pomodoro/bot/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	adminHandler *handler.AdminHandler,
	webhookHandler *handler.WebhookHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.POST("/webhook/telegram", webhookHandler.Telegram)

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)

	admin := api.Group("/admin")
	admin.Use(middleware.Auth(authService))
	admin.GET("/timers", adminHandler.ListTimers)
	admin.GET("/users/:platformId/today", adminHandler.UserToday)
	admin.GET("/users/:platformId/sessions", adminHandler.UserSessions)
	admin.GET("/reset", adminHandler.ResetStatus)
	admin.POST("/reset", adminHandler.RunReset)

	return engine
}
