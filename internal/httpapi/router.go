package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/threadkeep/threadkeep/internal/httpapi/handlers"
	"github.com/threadkeep/threadkeep/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.GET("/models", h.ListModels)

	api.POST("/chats", h.SaveChat)
	api.GET("/chats", h.ListChats)
	api.GET("/chats/:id/messages", h.GetChatMessages)
	api.PATCH("/chats/:id/model", h.UpdateChatModel)
	api.DELETE("/chats/:id", h.DeleteChat)

	api.POST("/chat/stream", h.StreamTurn)

	api.POST("/jobs", h.CreateJob)
	api.GET("/jobs/:id", h.GetJob)

	return r
}
