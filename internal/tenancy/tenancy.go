// Package tenancy carries the active tenant and its database handle through a
// request. Nothing here is process-global: each request holds its own Scope.
package tenancy

import (
	"context"

	"go-pos-tenancy/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const scopeKey = "tenancy.scope"

type ctxKey struct{}

// Scope is the tenant a request runs against and the handle for its database.
type Scope struct {
	Tenant *models.Tenant
	DB     *gorm.DB
}

// Switcher points requests at tenant databases. The master handle is what
// requests fall back to outside a tenant scope.
type Switcher struct {
	master *gorm.DB
}

// NewSwitcher creates a switcher with the master handle as the default
func NewSwitcher(master *gorm.DB) *Switcher {
	return &Switcher{master: master}
}

// Master returns the default handle
func (s *Switcher) Master() *gorm.DB {
	return s.master
}

// Activate makes db the handle for the rest of this request.
func (s *Switcher) Activate(c *gin.Context, t *models.Tenant, db *gorm.DB) {
	scope := &Scope{Tenant: t, DB: db}
	c.Set(scopeKey, scope)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, scope))
}

// Restore drops the request's scope so later code sees the master handle.
// It is deferred by the middleware and runs on every exit path.
func (s *Switcher) Restore(c *gin.Context) {
	if _, ok := c.Get(scopeKey); !ok {
		return
	}
	c.Set(scopeKey, (*Scope)(nil))
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, (*Scope)(nil)))
}

// Current returns the active scope of the request, or nil.
func Current(c *gin.Context) *Scope {
	v, ok := c.Get(scopeKey)
	if !ok {
		return nil
	}
	scope, _ := v.(*Scope)
	return scope
}

// Tenant returns the active tenant, or nil outside a tenant scope.
func Tenant(c *gin.Context) *models.Tenant {
	if s := Current(c); s != nil {
		return s.Tenant
	}
	return nil
}

// DB returns the tenant handle bound to the request context, falling back to master.
func (s *Switcher) DB(c *gin.Context) *gorm.DB {
	if scope := Current(c); scope != nil && scope.DB != nil {
		return scope.DB.WithContext(c.Request.Context())
	}
	return s.master.WithContext(c.Request.Context())
}

// FromContext returns the scope attached to ctx, for code without access to gin.
func FromContext(ctx context.Context) *Scope {
	scope, _ := ctx.Value(ctxKey{}).(*Scope)
	return scope
}
