package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-pos-tenancy/internal/auth"
	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/provision"
	"go-pos-tenancy/internal/tenancy"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type harness struct {
	registry *tenant.Registry
	tenancy  *Tenancy
	router   *gin.Engine
}

func newHarness(t *testing.T, prov Provisioner) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.Configure(&config.JWTConfig{SigningKey: "middleware-test"})

	cfg := &config.Config{
		DB: config.DBConfig{Driver: "sqlite", Name: "master", SQLiteDir: t.TempDir(), LogLevel: logger.Silent},
		Tenancy: config.TenancyConfig{
			BaseDomain:         "pos.test",
			ReservedSubdomains: []string{"www"},
			DatabasePrefix:     "tenant_",
			LockTimeout:        5 * time.Second,
		},
	}
	master, err := database.Connect(&cfg.DB, zap.NewNop())
	require.NoError(t, err)
	registry := tenant.NewRegistry(master)

	if prov == nil {
		driver, err := provision.NewDriver(cfg)
		require.NoError(t, err)
		p := provision.New(cfg, master, driver, registry, zap.NewNop())
		t.Cleanup(p.Close)
		prov = p
	}

	sw := tenancy.NewSwitcher(master)
	tn := &Tenancy{
		Resolver:    tenant.NewResolver(registry, cfg.Tenancy.BaseDomain, cfg.Tenancy.ReservedSubdomains),
		Guard:       tenant.NewGuard(),
		Provisioner: prov,
		Switcher:    sw,
		Debug:       true,
	}

	r := gin.New()
	api := r.Group("/api", OptionalAuth(), tn.Tenant(TenantOptions{Required: true}))
	api.POST("/products", func(c *gin.Context) {
		p := models.Product{Name: c.Query("name"), Price: decimal.NewFromInt(10)}
		if err := sw.DB(c).Create(&p).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, p)
	})
	api.GET("/products", func(c *gin.Context) {
		var out []models.Product
		sw.DB(c).Find(&out)
		c.JSON(http.StatusOK, out)
	})

	open := r.Group("/open", OptionalAuth(), tn.Tenant(TenantOptions{}))
	open.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": tenancy.Tenant(c) != nil})
	})
	open.PUT("/settings", tn.RequireTenant(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return &harness{registry: registry, tenancy: tn, router: r}
}

func (h *harness) activeTenant(t *testing.T, slug string) *models.Tenant {
	sub := slug
	tn, err := h.registry.Create(context.Background(), tenant.NewTenant{Name: slug, Slug: slug, Subdomain: &sub})
	require.NoError(t, err)
	tn, err = h.registry.UpdateStatus(context.Background(), tn.ID, models.TenantActive)
	require.NoError(t, err)
	return tn
}

func token(t *testing.T, role string, tenantID *uint) string {
	tok, err := auth.GenerateToken(1, role, tenantID)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(h *harness, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	code, _ := body["code"].(string)
	return code
}

func TestStrictRouteWithoutTenant(t *testing.T) {
	h := newHarness(t, nil)
	w := do(h, http.MethodGet, "http://pos.test/api/products", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, tenant.CodeNotFound, decodeCode(t, w))
}

func TestSuspendedTenantDenied(t *testing.T) {
	h := newHarness(t, nil)
	tn := h.activeTenant(t, "sleepy")
	_, err := h.registry.UpdateStatus(context.Background(), tn.ID, models.TenantSuspended)
	require.NoError(t, err)

	w := do(h, http.MethodGet, "http://sleepy.pos.test/api/products", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, tenant.CodeAccessDenied, decodeCode(t, w))
}

func TestCallerFromOtherTenantForbidden(t *testing.T) {
	h := newHarness(t, nil)
	h.activeTenant(t, "shop-a")
	b := h.activeTenant(t, "shop-b")

	w := do(h, http.MethodGet, "http://pos.test/api/products", map[string]string{
		tenant.HeaderSlug: "shop-a",
		"Authorization":   token(t, models.RoleCashier, &b.ID),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, tenant.CodeAccessForbidden, decodeCode(t, w))

	w = do(h, http.MethodGet, "http://pos.test/api/products", map[string]string{
		tenant.HeaderSlug: "shop-a",
		"Authorization":   token(t, models.RoleSuperAdmin, nil),
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDataIsolatedBetweenTenants(t *testing.T) {
	h := newHarness(t, nil)
	a := h.activeTenant(t, "shop-a")
	b := h.activeTenant(t, "shop-b")

	w := do(h, http.MethodPost, "http://shop-a.pos.test/api/products?name=only-a", map[string]string{
		"Authorization": token(t, models.RoleAdmin, &a.ID),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, a.Code, w.Header().Get(HeaderTenantCode))
	assert.Equal(t, "tenant_"+a.Code, w.Header().Get(HeaderTenantDatabase))

	w = do(h, http.MethodGet, "http://shop-b.pos.test/api/products", map[string]string{
		"Authorization": token(t, models.RoleAdmin, &b.ID),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, b.Code, w.Header().Get(HeaderTenantCode))
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(h, http.MethodGet, "http://shop-a.pos.test/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "only-a")
}

func TestOptionalGroup(t *testing.T) {
	h := newHarness(t, nil)

	w := do(h, http.MethodGet, "http://pos.test/open/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenant":false}`, w.Body.String())

	w = do(h, http.MethodPut, "http://pos.test/open/settings", map[string]string{
		"Authorization": token(t, models.RoleSuperAdmin, nil),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, tenant.CodeContextMissing, decodeCode(t, w))
}

type brokenProvisioner struct{}

func (brokenProvisioner) Provision(context.Context, *models.Tenant) (*gorm.DB, error) {
	return nil, errors.New("server unreachable")
}

func TestProvisioningFailureIsServiceUnavailable(t *testing.T) {
	h := newHarness(t, brokenProvisioner{})
	h.activeTenant(t, "shop-a")

	w := do(h, http.MethodGet, "http://shop-a.pos.test/api/products", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, tenant.CodeProvisioningFailed, decodeCode(t, w))
	assert.Empty(t, w.Header().Get(HeaderTenantCode))
	assert.NotContains(t, w.Body.String(), "unreachable")
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth.Configure(&config.JWTConfig{SigningKey: "middleware-test"})
	r := gin.New()
	r.GET("/managers", AuthMiddleware(), RequireRole(models.RoleManager), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	h := &harness{router: r}

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/managers", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/managers",
		map[string]string{"Authorization": token(t, models.RoleCashier, nil)}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/managers",
		map[string]string{"Authorization": token(t, models.RoleManager, nil)}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/managers",
		map[string]string{"Authorization": token(t, models.RoleSuperAdmin, nil)}).Code)
}
