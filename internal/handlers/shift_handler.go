package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type OpenShiftRequest struct {
	BranchID    *uint           `json:"branch_id"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

type CloseShiftRequest struct {
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

// OpenShift starts the caller's till session
func (h *Handler) OpenShift(c *gin.Context) {
	var req OpenShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	shift, err := h.Shifts.Open(c.Request.Context(), h.Switcher.DB(c), userID(c), req.BranchID, req.OpeningCash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "shift": shift})
}

// CloseShift reconciles and closes the caller's till session
func (h *Handler) CloseShift(c *gin.Context) {
	var req CloseShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	shift, err := h.Shifts.Close(c.Request.Context(), h.Switcher.DB(c), userID(c), req.ClosingCash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "shift": shift})
}

// CurrentShift returns the caller's open shift
func (h *Handler) CurrentShift(c *gin.Context) {
	shift, err := h.Shifts.Current(c.Request.Context(), h.Switcher.DB(c), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}
