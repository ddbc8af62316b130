package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go-pos-tenancy/internal/logger"
	"go-pos-tenancy/internal/metrics"
	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/tenancy"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Debug response headers.
const (
	HeaderTenantCode     = "X-Tenant-Code"
	HeaderTenantDatabase = "X-Tenant-Database"
)

// Provisioner is the part of the provisioner the request path needs.
type Provisioner interface {
	Provision(ctx context.Context, t *models.Tenant) (*gorm.DB, error)
}

// Tenancy bundles the collaborators of the tenant middleware.
type Tenancy struct {
	Resolver    *tenant.Resolver
	Guard       *tenant.Guard
	Provisioner Provisioner
	Switcher    *tenancy.Switcher
	Debug       bool
}

// TenantOptions configures one route group.
type TenantOptions struct {
	// Required rejects requests that resolve to no tenant with 404.
	Required bool
	// AllowQuery lets the tenant_id query parameter select the tenant.
	AllowQuery bool
}

// cookieSession exposes request cookies as a session.
type cookieSession struct{ c *gin.Context }

func (s cookieSession) Get(key interface{}) interface{} {
	name, ok := key.(string)
	if !ok {
		return nil
	}
	v, err := s.c.Cookie(name)
	if err != nil {
		return nil
	}
	return v
}

// Tenant resolves, authorizes and provisions the request's tenant, then scopes
// the request to its database. Authorization always runs before any
// connection to the tenant database is attempted.
func (d *Tenancy) Tenant(opts TenantOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		t, source, err := d.Resolver.Resolve(c.Request.Context(), tenant.Request{
			Header:     c.Request.Header,
			Host:       c.Request.Host,
			Query:      c.Request.URL.Query(),
			AllowQuery: opts.AllowQuery,
			Session:    cookieSession{c},
		})
		if err != nil {
			logger.FromGin(c).Error("Tenant resolution failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Internal server error",
			})
			return
		}
		metrics.TenantResolutions.WithLabelValues(string(source)).Inc()

		if t == nil {
			if opts.Required {
				AbortTenantError(c, tenant.ErrNotResolved)
				return
			}
			c.Next()
			return
		}

		if err := d.Guard.Authorize(t, CallerFrom(c), opts.Required); err != nil {
			AbortTenantError(c, err)
			return
		}

		db, err := d.Provisioner.Provision(c.Request.Context(), t)
		if err != nil {
			logger.FromGin(c).Error("Tenant database unavailable",
				zap.String("tenant", t.Code), zap.Error(err))
			AbortTenantError(c, tenant.Wrap(tenant.ErrProvisioningFailed, err, ""))
			return
		}

		d.Switcher.Activate(c, t, db)
		reqLog := logger.FromGin(c).With(zap.String("tenant", t.Code))
		logger.SetGin(c, reqLog)

		defer func() {
			reqLog.Info("Tenant request finished",
				zap.String("database", t.DBName),
				zap.String("ip", c.ClientIP()),
				zap.String("user_agent", c.Request.UserAgent()),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("elapsed", time.Since(start)),
			)
			d.Switcher.Restore(c)
		}()

		if d.Debug {
			c.Header(HeaderTenantCode, t.Code)
			c.Header(HeaderTenantDatabase, t.DBName)
		}

		c.Next()
	}
}

// RequireTenant rejects requests in an optional-tenant group that reach an
// action needing a tenant. Elevated callers are not exempt.
func (d *Tenancy) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Guard.Authorize(tenancy.Tenant(c), CallerFrom(c), true); err != nil {
			AbortTenantError(c, err)
			return
		}
		c.Next()
	}
}

// AbortTenantError writes the tenant error contract and stops the chain.
func AbortTenantError(c *gin.Context, err error) {
	var te *tenant.Error
	if !errors.As(err, &te) {
		te = tenant.Wrap(tenant.ErrProvisioningFailed, err, "")
	}
	metrics.TenantAccessDenied.WithLabelValues(te.Code).Inc()
	c.AbortWithStatusJSON(te.Status, gin.H{
		"success": false,
		"error":   http.StatusText(te.Status),
		"message": te.Message,
		"code":    te.Code,
	})
}
