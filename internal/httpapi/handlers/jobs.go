package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/threadkeep/threadkeep/internal/chat"
	"github.com/threadkeep/threadkeep/internal/common"
)

type createJobReq struct {
	ChatID uint64 `json:"chat_id" binding:"required"`
	Model  string `json:"model"`
	Prompt string `json:"prompt" binding:"required"`
}

// CreateJob enqueues one completion turn to run in the background
// worker. Async turns exist only for persisted chats; the result lands
// in the chat's message history.
func (h *Handler) CreateJob(c *gin.Context) {
	if h.Jobs == nil {
		respondErr(c, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid json")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "internal error")
		return
	}

	job := &chat.TurnJob{
		ID:     jobID,
		ChatID: req.ChatID,
		Model:  req.Model,
		Prompt: req.Prompt,
		Status: chat.JobQueued,
	}

	err = h.Store.CreateJob(c.Request.Context(), job)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		respondErr(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, chat.ErrPersistenceUnavailable):
		respondErr(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		respondErr(c, http.StatusInternalServerError, "failed to create job")
		return
	}

	if err := h.Jobs.PublishJob(c.Request.Context(), job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		respondErr(c, http.StatusInternalServerError, "enqueue failed")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

func (h *Handler) GetJob(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respondErr(c, http.StatusBadRequest, "job id required")
		return
	}

	job, err := h.Store.GetJob(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		respondErr(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, chat.ErrPersistenceUnavailable):
		respondErr(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		respondErr(c, http.StatusInternalServerError, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}
