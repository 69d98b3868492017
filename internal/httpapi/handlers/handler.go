package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/threadkeep/threadkeep/internal/ai"
	"github.com/threadkeep/threadkeep/internal/chat"
	"github.com/threadkeep/threadkeep/internal/store/rabbitmq"
	"github.com/threadkeep/threadkeep/internal/store/redisstore"
)

// Handler exposes the conversation store and the streaming aggregator
// to an external UI. Models and Jobs may be nil; the matching features
// degrade (cache misses, 503 on async turns).
type Handler struct {
	Store      *chat.Store
	Aggregator *chat.Aggregator
	Registry   *ai.Registry
	Provider   string
	Models     *redisstore.Store
	Jobs       *rabbitmq.Publisher
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func respondErr(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
