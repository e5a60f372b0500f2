package handlers

import (
	"errors"
	"net/http"

	"go-pos-ledger/internal/ai"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AskRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) AskAI(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Message is required")
		return
	}
	if h.assistant == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Assistant is not configured"})
		return
	}

	reply, err := h.assistant.Ask(c.Request.Context(), req.Message)
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Server missing Gemini API key"})
			return
		}
		h.log.Error("assistant failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"success": false, "error": "Assistant is unavailable"})
		return
	}
	respond(c, http.StatusOK, gin.H{"reply": reply})
}
