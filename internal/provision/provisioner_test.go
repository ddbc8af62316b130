package provision

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/tenant"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

type fixture struct {
	cfg      *config.Config
	registry *tenant.Registry
	prov     *Provisioner
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		DB: config.DBConfig{
			Driver:    "sqlite",
			Name:      "master",
			SQLiteDir: t.TempDir(),
			LogLevel:  logger.Silent,
		},
		Tenancy: config.TenancyConfig{DatabasePrefix: "tenant_", LockTimeout: 5 * time.Second},
	}
	master, err := database.Connect(&cfg.DB, zap.NewNop())
	require.NoError(t, err)

	registry := tenant.NewRegistry(master)
	driver, err := NewDriver(cfg)
	require.NoError(t, err)
	prov := New(cfg, master, driver, registry, zap.NewNop())
	t.Cleanup(prov.Close)
	return &fixture{cfg: cfg, registry: registry, prov: prov}
}

func (f *fixture) tenant(t *testing.T, slug string) *models.Tenant {
	tn, err := f.registry.Create(context.Background(), tenant.NewTenant{Name: slug, Slug: slug})
	require.NoError(t, err)
	return tn
}

func TestProvisionCreatesDatabaseAndSchema(t *testing.T) {
	f := setup(t)
	tn := f.tenant(t, "alpha")

	db, err := f.prov.Provision(context.Background(), tn)
	require.NoError(t, err)

	assert.Equal(t, "tenant_"+tn.Code, tn.DBName)
	assert.Equal(t, "tenant_"+tn.Code, DescriptorName(tn))
	_, err = os.Stat(database.SQLitePath(&f.cfg.DB, tn.DBName))
	assert.NoError(t, err)

	for _, m := range models.TenantModels() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	var v models.SchemaVersion
	require.NoError(t, db.First(&v, 1).Error)
	assert.Equal(t, models.CurrentSchemaVersion, v.Version)

	stored, err := f.registry.FindByID(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tn.DBName, stored.DBName)
	assert.NotEmpty(t, stored.DBPassword)
}

func TestProvisionIsIdempotent(t *testing.T) {
	f := setup(t)
	tn := f.tenant(t, "beta")
	ctx := context.Background()

	first, err := f.prov.Provision(ctx, tn)
	require.NoError(t, err)
	require.NoError(t, first.Create(&models.Product{Name: "Tea", Price: decimal.NewFromInt(5)}).Error)

	again, err := f.prov.Provision(ctx, tn)
	require.NoError(t, err)
	assert.Same(t, first, again)

	// A fresh process reuses the stored credentials and leaves data alone.
	stored, err := f.registry.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	restarted := New(f.cfg, f.prov.admin, f.prov.driver, f.registry, zap.NewNop())
	defer restarted.Close()
	db, err := restarted.Provision(ctx, stored)
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.Product{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, tn.DBPassword, stored.DBPassword)
}

func TestProvisionConcurrentFirstUse(t *testing.T) {
	f := setup(t)
	tn := f.tenant(t, "gamma")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			copyT := *tn
			_, errs[i] = f.prov.Provision(context.Background(), &copyT)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	stored, err := f.registry.FindByID(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.DBPassword)
}

func TestProvisionOutlivesCancelledCaller(t *testing.T) {
	f := setup(t)
	tn := f.tenant(t, "delta")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db, err := f.prov.Provision(ctx, tn)
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&models.Product{}))
}

func TestTenantsAreIsolated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.tenant(t, "shop-a")
	b := f.tenant(t, "shop-b")

	dbA, err := f.prov.Provision(ctx, a)
	require.NoError(t, err)
	dbB, err := f.prov.Provision(ctx, b)
	require.NoError(t, err)
	assert.NotEqual(t, a.DBName, b.DBName)

	require.NoError(t, dbA.Create(&models.Product{Name: "Only in A", Price: decimal.NewFromInt(1)}).Error)

	var n int64
	require.NoError(t, dbB.Model(&models.Product{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestDropRemovesDatabase(t *testing.T) {
	f := setup(t)
	tn := f.tenant(t, "delta")
	ctx := context.Background()

	_, err := f.prov.Provision(ctx, tn)
	require.NoError(t, err)
	require.NoError(t, f.prov.Drop(ctx, tn))

	_, err = os.Stat(database.SQLitePath(&f.cfg.DB, tn.DBName))
	assert.True(t, os.IsNotExist(err))

	exists, err := f.prov.driver.DatabaseExists(ctx, f.prov.admin, tn.DBName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUnsafeIdentifiersRejected(t *testing.T) {
	assert.Error(t, checkIdent("tenant_abc; DROP"))
	assert.NoError(t, checkIdent("tenant_0a1b2c"))
}
