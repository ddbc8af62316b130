package handlers

import (
	"context"
	"net/http"

	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
)

// sessionMaxAge keeps the admin tenant selection for one working day.
const sessionMaxAge = 8 * 60 * 60

// ListTenants - GET /admin/tenants
func (h *Handler) ListTenants(c *gin.Context) {
	tenants, err := h.Registry.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenants)
}

// OnboardTenant creates, provisions and activates a tenant
func (h *Handler) OnboardTenant(c *gin.Context) {
	var in tenant.NewTenant
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Lifecycle.Onboard(c.Request.Context(), in)
	if err != nil {
		if t != nil {
			// Row exists but stays pending; the client can retry provisioning.
			c.JSON(http.StatusAccepted, gin.H{
				"success": false,
				"message": "Tenant created but its database could not be provisioned",
				"code":    tenant.CodeProvisioningFailed,
				"tenant":  t,
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "tenant": t})
}

// RetryProvisioning provisions a tenant left pending
func (h *Handler) RetryProvisioning(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	t, err := h.Lifecycle.Retry(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": t})
}

// UpdateTenantStatus suspends, activates or cancels a tenant
func (h *Handler) UpdateTenantStatus(c *gin.Context) {
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

	actions := map[string]func(context.Context, uint) (*models.Tenant, error){
		models.TenantSuspended: h.Lifecycle.Suspend,
		models.TenantActive:    h.Lifecycle.Activate,
		models.TenantCancelled: h.Lifecycle.Cancel,
	}
	action, ok := actions[req.Status]
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "Invalid status",
			"errors":  gin.H{"status": []string{"must be active, suspended or cancelled"}},
		})
		return
	}
	t, err := action(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": t})
}

// UpdateTenantLimits replaces a tenant's plan limits
func (h *Handler) UpdateTenantLimits(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var l tenant.Limits
	if err := c.ShouldBindJSON(&l); err != nil {
		badRequest(c, err)
		return
	}
	if l.MaxUsers < 0 || l.MaxProducts < 0 || l.MaxTransactions < 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "Limits must not be negative",
			"errors":  gin.H{"limits": []string{"zero means unlimited"}},
		})
		return
	}
	t, err := h.Registry.UpdateLimits(c.Request.Context(), id, l)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": t})
}

// ExtendTrial pushes a tenant's trial end
func (h *Handler) ExtendTrial(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Days int `json:"days" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.Registry.ExtendTrial(c.Request.Context(), id, req.Days, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": t})
}

// DestroyTenant drops a tenant's database and removes it from the catalog
func (h *Handler) DestroyTenant(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.Lifecycle.Destroy(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Tenant destroyed"})
}

// SelectTenant stores the tenant a platform admin is working on in the
// session cookie, so later requests resolve to it without headers.
func (h *Handler) SelectTenant(c *gin.Context) {
	var req struct {
		Slug string `json:"slug"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Slug == "" {
		c.SetCookie(tenant.SessionSlugKey, "", -1, "/", "", h.SecureCookies, true)
		c.JSON(http.StatusOK, gin.H{"success": true, "tenant": nil})
		return
	}
	t, err := h.Registry.FindBySlug(c.Request.Context(), req.Slug)
	if err != nil {
		respondError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tenant.SessionSlugKey, t.Slug, sessionMaxAge, "/", "", h.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": t})
}
