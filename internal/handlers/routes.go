package handlers

import (
	"net/http"

	"go-pos-tenancy/internal/middleware"
	"go-pos-tenancy/internal/models"

	"github.com/gin-gonic/gin"
)

// Routes mounts every endpoint. Authentication always runs before tenant
// resolution so the guard sees the caller.
func (h *Handler) Routes(r *gin.Engine, tn *middleware.Tenancy) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "online"}) })

	// Tenant optional: resolved when the host or headers name one.
	public := r.Group("", middleware.OptionalAuth(), tn.Tenant(middleware.TenantOptions{}))
	{
		public.POST("/login", h.Login)
		if h.AllowRegistration {
			public.POST("/register", tn.RequireTenant(), h.Register)
		}
		public.GET("/api/setup/status", h.GetSetupStatus)
		public.PUT("/api/setup/settings",
			middleware.AuthMiddleware(),
			middleware.RequireRole(models.RoleAdmin),
			tn.RequireTenant(),
			h.UpdateSettings)
	}

	api := r.Group("/api", middleware.AuthMiddleware(), tn.Tenant(middleware.TenantOptions{Required: true}))
	{
		api.GET("/products", h.GetProducts)
		api.POST("/checkout", h.Checkout)
		api.POST("/returns", h.ProcessReturn)
		api.GET("/sales/:number", h.GetSale)

		api.POST("/shifts/open", h.OpenShift)
		api.POST("/shifts/close", h.CloseShift)
		api.GET("/shifts/current", h.CurrentShift)

		api.POST("/appointments", h.BookAppointment)
		api.PUT("/appointments/:id/status", h.TransitionAppointment)

		manage := api.Group("", middleware.RequireRole(models.RoleAdmin, models.RoleManager))
		{
			manage.POST("/products", h.AddProduct)
			manage.PUT("/products/:id", h.UpdateProduct)
			manage.DELETE("/products/:id", h.DeleteProduct)
			manage.POST("/products/:id/stock", h.AdjustStock)
			manage.GET("/reports", h.GetSalesReport)
			manage.GET("/reports/valuation", h.GetStockValuation)
		}

		api.POST("/ask", middleware.RequireRole(models.RoleAdmin), h.AskAI)
	}

	// Payment providers sign the body instead of sending a user token; the
	// tenant may come from the query.
	webhooks := r.Group("/webhooks",
		middleware.WebhookSignature(h.WebhookSecret),
		tn.Tenant(middleware.TenantOptions{Required: true, AllowQuery: true}))
	{
		webhooks.POST("/payments", h.RecordPayment)
	}

	admin := r.Group("/admin", middleware.AuthMiddleware(), middleware.RequireRole(models.RoleSuperAdmin))
	{
		admin.GET("/tenants", h.ListTenants)
		admin.POST("/tenants", h.OnboardTenant)
		admin.POST("/tenants/select", h.SelectTenant)
		admin.POST("/tenants/:id/provision", h.RetryProvisioning)
		admin.PUT("/tenants/:id/status", h.UpdateTenantStatus)
		admin.PUT("/tenants/:id/limits", h.UpdateTenantLimits)
		admin.POST("/tenants/:id/extend-trial", h.ExtendTrial)
		admin.DELETE("/tenants/:id", h.DestroyTenant)
	}
}
