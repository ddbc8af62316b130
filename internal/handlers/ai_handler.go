package handlers

import (
	"net/http"

	"go-pos-tenancy/internal/tenancy"

	"github.com/gin-gonic/gin"
)

type AskRequest struct {
	Message string `json:"message" binding:"required"`
}

// AskAI runs the assistant against the active tenant only
func (h *Handler) AskAI(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Message is required"})
		return
	}

	response, err := h.Agent.Ask(c.Request.Context(), h.Switcher.DB(c), tenancy.Tenant(c), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "reply": response})
}
