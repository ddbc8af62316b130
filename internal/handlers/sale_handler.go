package handlers

import (
	"net/http"
	"strings"
	"time"

	"go-pos-tenancy/internal/events"
	"go-pos-tenancy/internal/sales"
	"go-pos-tenancy/internal/tenancy"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Checkout records a sale for the calling cashier
func (h *Handler) Checkout(c *gin.Context) {
	var req sales.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.CashierID = userID(c)

	t := tenancy.Tenant(c)
	db := h.Switcher.DB(c)
	if t != nil && t.MaxTransactions > 0 {
		req.Quota = func(tx *gorm.DB, now time.Time) error {
			return tenant.CheckTransactionLimit(c.Request.Context(), t, tx, now)
		}
	}

	sale, err := h.Sales.Checkout(c.Request.Context(), db, req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.publish(c, events.NewEvent(events.SaleCompleted, t.Code, sale.Number, sale.GrandTotal))

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Sale successful!",
		"sale":    sale,
	})
}

// ProcessReturn refunds lines of an earlier sale
func (h *Handler) ProcessReturn(c *gin.Context) {
	var req sales.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.UserID = userID(c)

	ret, err := h.Sales.ProcessReturn(c.Request.Context(), h.Switcher.DB(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.publish(c, events.NewEvent(events.SaleReturned, tenancy.Tenant(c).Code, ret.Number, ret.Total))

	c.JSON(http.StatusCreated, gin.H{"success": true, "return": ret})
}

// GetSale returns one sale with its items and payments
func (h *Handler) GetSale(c *gin.Context) {
	sale, err := sales.GetSale(c.Request.Context(), h.Switcher.DB(c), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// PaymentWebhook is what a payment provider calls when a payment settles.
type PaymentWebhook struct {
	SaleNumber string          `json:"sale_number" binding:"required"`
	Method     string          `json:"method" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference" binding:"required"`
}

// RecordPayment applies a provider payment. Redelivery of the same reference
// answers 200 without recording anything new.
func (h *Handler) RecordPayment(c *gin.Context) {
	var in PaymentWebhook
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	ref := strings.TrimSpace(in.Reference)

	sale, created, err := h.Sales.RecordPayment(c.Request.Context(), h.Switcher.DB(c), in.SaleNumber, sales.PaymentInput{
		Method:    in.Method,
		Amount:    in.Amount,
		Reference: &ref,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.publish(c, events.NewEvent(events.PaymentApplied, tenancy.Tenant(c).Code, sale.Number, in.Amount))
	}
	c.JSON(status, gin.H{"success": true, "duplicate": !created, "sale": sale})
}
