package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go-pos-tenancy/internal/ai"
	"go-pos-tenancy/internal/appointments"
	"go-pos-tenancy/internal/events"
	"go-pos-tenancy/internal/logger"
	"go-pos-tenancy/internal/middleware"
	"go-pos-tenancy/internal/sales"
	"go-pos-tenancy/internal/shifts"
	"go-pos-tenancy/internal/tenancy"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler holds the collaborators shared by every HTTP handler. Tenant data is
// always reached through Switcher.DB(c), never through a stored handle.
type Handler struct {
	Switcher          *tenancy.Switcher
	Registry          *tenant.Registry
	Lifecycle         *tenant.Lifecycle
	Sales             *sales.Service
	Shifts            *shifts.Service
	Appointments      *appointments.Service
	Agent             *ai.Agent
	Events            events.Publisher
	AllowRegistration bool
	SecureCookies     bool
	WebhookSecret     string

	now func() time.Time
}

// New creates a handler set with fresh domain services
func New(sw *tenancy.Switcher, registry *tenant.Registry, lifecycle *tenant.Lifecycle, agent *ai.Agent, pub events.Publisher) *Handler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Handler{
		Switcher:     sw,
		Registry:     registry,
		Lifecycle:    lifecycle,
		Sales:        sales.NewService(),
		Shifts:       shifts.NewService(),
		Appointments: appointments.NewService(),
		Agent:        agent,
		Events:       pub,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// errorMapping ties a domain error to a status and the request field it concerns.
type errorMapping struct {
	err    error
	status int
	field  string
}

var domainErrors = []errorMapping{
	{sales.ErrEmptyCart, http.StatusUnprocessableEntity, "items"},
	{sales.ErrNoValidPayment, http.StatusUnprocessableEntity, "payments"},
	{sales.ErrNegativeAmount, http.StatusUnprocessableEntity, "amount"},
	{sales.ErrNothingToReturn, http.StatusUnprocessableEntity, "items"},
	{sales.ErrInvalidAdjustment, http.StatusUnprocessableEntity, "delta"},
	{sales.ErrNegativeStock, http.StatusUnprocessableEntity, "stock_quantity"},
	{sales.ErrSaleNotFound, http.StatusNotFound, "sale_number"},
	{sales.ErrProductNotFound, http.StatusNotFound, "product_id"},
	{sales.ErrDuplicateReference, http.StatusConflict, "reference"},
	{shifts.ErrShiftAlreadyOpen, http.StatusConflict, "shift"},
	{shifts.ErrNoOpenShift, http.StatusNotFound, "shift"},
	{shifts.ErrNegativeCash, http.StatusUnprocessableEntity, "cash"},
	{appointments.ErrServiceNotFound, http.StatusNotFound, "service_id"},
	{appointments.ErrInvalidDuration, http.StatusUnprocessableEntity, "duration_minutes"},
	{appointments.ErrSlotTaken, http.StatusConflict, "starts_at"},
	{appointments.ErrCustomerRequired, http.StatusUnprocessableEntity, "customer_name"},
	{appointments.ErrAppointmentNotFound, http.StatusNotFound, "id"},
	{appointments.ErrInvalidTransition, http.StatusConflict, "status"},
	{tenant.ErrTenantNotFound, http.StatusNotFound, "tenant"},
	{tenant.ErrInvalidSlug, http.StatusUnprocessableEntity, "slug"},
	{ai.ErrNotConfigured, http.StatusServiceUnavailable, "message"},
}

// respondError writes the error contract for err. Tenant errors keep their
// machine code; unknown errors are logged and answered with a generic 500.
func respondError(c *gin.Context, err error) {
	var te *tenant.Error
	if errors.As(err, &te) {
		middleware.AbortTenantError(c, te)
		return
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			c.AbortWithStatusJSON(m.status, gin.H{
				"success": false,
				"message": m.err.Error(),
				"errors":  gin.H{m.field: []string{m.err.Error()}},
			})
			return
		}
	}
	logger.FromGin(c).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Internal server error",
	})
}

// badRequest answers a malformed body.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": "Invalid input",
		"errors":  gin.H{"body": []string{err.Error()}},
	})
}

func userID(c *gin.Context) uint {
	return c.GetUint("userID")
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid " + name,
		})
		return 0, false
	}
	return uint(id), true
}

// publish sends a sales event for the active tenant after the transaction committed.
func (h *Handler) publish(c *gin.Context, e events.Event) {
	events.PublishAsync(h.Events, logger.FromGin(c), e)
}
