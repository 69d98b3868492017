package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threadkeep/threadkeep/internal/ai"
	"github.com/threadkeep/threadkeep/internal/chat"
)

type saveChatReq struct {
	Name     string       `json:"name"`
	Model    string       `json:"model" binding:"required"`
	Messages []ai.Message `json:"messages"`
}

func (h *Handler) SaveChat(c *gin.Context) {
	var req saveChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := h.Store.SaveChat(c.Request.Context(), req.Name, req.Model, req.Messages)
	switch {
	case errors.Is(err, chat.ErrValidation):
		respondErr(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrDuplicateName):
		respondErr(c, http.StatusConflict, err.Error())
		return
	case errors.Is(err, chat.ErrPersistenceUnavailable):
		respondErr(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		respondErr(c, http.StatusInternalServerError, "failed to save chat")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"chat_id": id})
}

func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.Store.ListChats(c.Request.Context())
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func chatIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondErr(c, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return id, true
}

func (h *Handler) GetChatMessages(c *gin.Context) {
	id, ok := chatIDParam(c)
	if !ok {
		return
	}

	msgs, err := h.Store.GetMessages(c.Request.Context(), id)
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "failed to get messages")
		return
	}
	if msgs == nil {
		msgs = []ai.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type updateModelReq struct {
	Model string `json:"model" binding:"required"`
}

func (h *Handler) UpdateChatModel(c *gin.Context) {
	id, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req updateModelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.Store.UpdateChatModel(c.Request.Context(), id, req.Model); err != nil {
		respondErr(c, http.StatusInternalServerError, "failed to update chat model")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteChat(c *gin.Context) {
	id, ok := chatIDParam(c)
	if !ok {
		return
	}

	if err := h.Store.DeleteChat(c.Request.Context(), id); err != nil {
		respondErr(c, http.StatusInternalServerError, "failed to delete chat")
		return
	}
	c.Status(http.StatusNoContent)
}

type streamTurnReq struct {
	ChatID  uint64       `json:"chat_id"`
	Model   string       `json:"model" binding:"required"`
	History []ai.Message `json:"history"`
	Prompt  string       `json:"prompt" binding:"required"`
}

// StreamTurn runs one completion turn and streams it back as SSE. The
// client owns the session context (chat id, model, working history) and
// sends it with every turn.
func (h *Handler) StreamTurn(c *gin.Context) {
	var req streamTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid json")
		return
	}

	sess := chat.NewSession(req.ChatID, req.Model, req.History)

	ctx := c.Request.Context()
	events, err := h.Aggregator.StartTurn(ctx, sess, req.Prompt)
	if err != nil {
		if errors.Is(err, chat.ErrTurnActive) {
			respondErr(c, http.StatusConflict, err.Error())
			return
		}
		respondErr(c, http.StatusBadRequest, err.Error())
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: failed\ndata: {\"error\":\"streaming not supported\"}\n\n")
		return
	}

	writeEvent := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: failed\ndata: {\"error\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	// Heartbeat keeps idle connections alive while the model thinks.
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case chat.EventPartial:
				writeEvent("partial", gin.H{"text": ev.Text})
			case chat.EventDone:
				writeEvent("done", gin.H{"text": ev.Text, "persisted": sess.Saved()})
			case chat.EventFailed:
				writeEvent("failed", gin.H{"error": ev.Err.Error()})
			}

		case <-ticker.C:
			writeEvent("ping", gin.H{"ts": time.Now().Unix()})

		case <-ctx.Done():
			return
		}
	}
}
