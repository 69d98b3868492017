package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/threadkeep/threadkeep/internal/ai"
)

// ListModels returns the provider's model catalog plus the model of the
// most recently saved chat, so a UI can preselect it. Provider failures
// are surfaced, not masked: model selection is a prerequisite for any
// turn. Only cache and store failures are absorbed.
func (h *Handler) ListModels(c *gin.Context) {
	ctx := c.Request.Context()

	models, cached := h.Models.GetModels(ctx)
	if !cached {
		provider, err := h.Registry.Get(ctx, h.Provider, "")
		if err != nil {
			respondErr(c, http.StatusBadGateway, err.Error())
			return
		}
		lister, ok := provider.(ai.ModelLister)
		if !ok {
			respondErr(c, http.StatusBadGateway, "provider does not expose a model catalog")
			return
		}
		models, err = lister.ListModels(ctx)
		if err != nil {
			respondErr(c, http.StatusBadGateway, err.Error())
			return
		}
		h.Models.SetModels(ctx, models)
	}

	lastUsed, err := h.Store.LastUsedModel(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("last used model lookup failed")
		lastUsed = ""
	}

	c.JSON(http.StatusOK, gin.H{
		"models":    models,
		"last_used": lastUsed,
	})
}
