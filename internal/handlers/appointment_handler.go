package handlers

import (
	"net/http"

	"go-pos-tenancy/internal/appointments"

	"github.com/gin-gonic/gin"
)

// BookAppointment books a service with a staff member
func (h *Handler) BookAppointment(c *gin.Context) {
	var req appointments.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	appt, err := h.Appointments.Book(c.Request.Context(), h.Switcher.DB(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "appointment": appt})
}

// TransitionAppointment moves an appointment to the requested status
func (h *Handler) TransitionAppointment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	appt, err := h.Appointments.Transition(c.Request.Context(), h.Switcher.DB(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "appointment": appt})
}
