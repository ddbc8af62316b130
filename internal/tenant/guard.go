package tenant

import (
	"time"

	"go-pos-tenancy/internal/models"
)

// Caller is the authenticated principal of a request as far as tenancy cares.
type Caller struct {
	UserID   uint
	Role     string
	TenantID *uint
}

// Elevated reports whether the caller may act on any tenant.
func (c *Caller) Elevated() bool {
	return c != nil && c.Role == models.RoleSuperAdmin
}

// Guard decides whether a caller may act within a resolved tenant.
type Guard struct {
	now func() time.Time
}

// NewGuard creates a guard using the wall clock
func NewGuard() *Guard {
	return &Guard{now: time.Now}
}

// Authorize checks, in order: a tenant is present when required, elevated
// callers pass, the tenant has access, and a regular caller belongs to it.
// A nil caller is anonymous and is only subject to the tenant checks.
func (g *Guard) Authorize(t *models.Tenant, caller *Caller, required bool) error {
	if t == nil {
		if required {
			return ErrContextMissing
		}
		return nil
	}
	if caller.Elevated() {
		return nil
	}
	if !t.HasAccess(g.now()) {
		return ErrAccessDenied
	}
	if caller != nil && (caller.TenantID == nil || *caller.TenantID != t.ID) {
		return ErrAccessForbidden
	}
	return nil
}
