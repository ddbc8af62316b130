package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/metrics"
	"go-pos-tenancy/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// CredentialStore persists generated tenant database credentials.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, t *models.Tenant) error
}

// Provisioner makes sure a tenant's database exists, is reachable through a
// named connection and carries the current schema. Every step is idempotent and
// safe to call from concurrent requests and processes.
type Provisioner struct {
	cfg    *config.Config
	admin  *gorm.DB
	driver Driver
	creds  CredentialStore
	log    *zap.Logger

	mu    sync.Mutex
	conns map[string]*gorm.DB

	// ready marks tenants fully provisioned by this process.
	ready sync.Map
	group singleflight.Group
}

// New creates a provisioner that issues DDL through the master handle.
func New(cfg *config.Config, admin *gorm.DB, driver Driver, creds CredentialStore, log *zap.Logger) *Provisioner {
	return &Provisioner{
		cfg:    cfg,
		admin:  admin,
		driver: driver,
		creds:  creds,
		log:    log,
		conns:  make(map[string]*gorm.DB),
	}
}

// DescriptorName is the registered connection name for a tenant.
func DescriptorName(t *models.Tenant) string {
	return "tenant_" + t.Code
}

// DatabaseName derives the tenant's database name; it is stable for a given code.
func (p *Provisioner) DatabaseName(t *models.Tenant) string {
	return p.cfg.Tenancy.DatabasePrefix + t.Code
}

// Provision runs every step for the tenant and returns its connection.
// Concurrent calls for the same tenant share one pass, which outlives the
// caller that started it and is bounded by twice the lock timeout.
func (p *Provisioner) Provision(ctx context.Context, t *models.Tenant) (*gorm.DB, error) {
	if _, ok := p.ready.Load(t.Code); ok {
		if db := p.connection(t); db != nil {
			return db, nil
		}
	}

	v, err, _ := p.group.Do(t.Code, func() (interface{}, error) {
		done := metrics.ObserveProvision(p.driver.Name())
		defer done()

		ctx := context.WithoutCancel(ctx)
		if d := p.cfg.Tenancy.LockTimeout; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, 2*d)
			defer cancel()
		}

		if err := p.EnsureDatabaseExists(ctx, t); err != nil {
			return nil, err
		}
		db, err := p.EnsureConnectionConfigured(t)
		if err != nil {
			return nil, err
		}
		if err := p.EnsureSchema(ctx, t, db); err != nil {
			return nil, err
		}
		p.ready.Store(t.Code, struct{}{})
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	if t.DBName == "" {
		// A caller that joined another's pass still sees the deterministic name.
		t.DBName = p.DatabaseName(t)
	}
	return v.(*gorm.DB), nil
}

// EnsureDatabaseExists generates credentials on first use and creates the
// database and login when missing.
func (p *Provisioner) EnsureDatabaseExists(ctx context.Context, t *models.Tenant) error {
	if err := p.ensureCredentials(ctx, t); err != nil {
		return p.fail("credentials", t, err)
	}
	exists, err := p.driver.DatabaseExists(ctx, p.admin, t.DBName)
	if err != nil {
		return p.fail("probe", t, err)
	}

	// The login is (re)asserted even when the database exists, so a half-finished
	// earlier attempt converges.
	err = p.driver.WithLock(ctx, p.admin, "provision_"+t.Code, p.cfg.Tenancy.LockTimeout, func() error {
		return p.driver.CreateDatabase(ctx, p.admin, t)
	})
	if err != nil {
		return p.fail("create_database", t, err)
	}
	if !exists {
		p.log.Info("Tenant database created",
			zap.String("tenant", t.Code), zap.String("database", t.DBName), zap.String("driver", p.driver.Name()))
	}
	return nil
}

func (p *Provisioner) ensureCredentials(ctx context.Context, t *models.Tenant) error {
	if t.DBPassword != "" && t.DBName != "" {
		return nil
	}
	t.DBName = p.DatabaseName(t)
	t.DBUsername = "u_" + t.Code
	t.DBPassword = strings.ReplaceAll(uuid.NewString(), "-", "")
	return p.creds.SaveCredentials(ctx, t)
}

// EnsureConnectionConfigured registers (once) and returns the tenant's named connection.
func (p *Provisioner) EnsureConnectionConfigured(t *models.Tenant) (*gorm.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := DescriptorName(t)
	if db, ok := p.conns[name]; ok {
		return db, nil
	}
	db, err := database.Open(&p.cfg.DB, p.driver.Endpoint(t))
	if err != nil {
		return nil, p.fail("connect", t, err)
	}
	p.conns[name] = db
	return db, nil
}

func (p *Provisioner) connection(t *models.Tenant) *gorm.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[DescriptorName(t)]
}

// EnsureSchema migrates the tenant database unless it already records the
// current schema version. The version is re-read under the lock.
func (p *Provisioner) EnsureSchema(ctx context.Context, t *models.Tenant, db *gorm.DB) error {
	if current, err := schemaCurrent(ctx, db); err == nil && current {
		return nil
	}

	err := p.driver.WithLock(ctx, p.admin, "migrate_"+t.Code, p.cfg.Tenancy.LockTimeout, func() error {
		current, err := schemaCurrent(ctx, db)
		if err != nil {
			return err
		}
		if current {
			return nil
		}
		if err := db.WithContext(ctx).AutoMigrate(models.TenantModels()...); err != nil {
			return err
		}
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			setting := models.Setting{ID: 1, RoundingPolicy: models.RoundingNone, RoundingMode: models.RoundingModeNormal}
			if err := tx.FirstOrCreate(&setting, models.Setting{ID: 1}).Error; err != nil {
				return err
			}
			return tx.Save(&models.SchemaVersion{ID: 1, Version: models.CurrentSchemaVersion, AppliedAt: time.Now()}).Error
		})
	})
	if err != nil {
		return p.fail("migrate", t, err)
	}
	p.log.Info("Tenant schema migrated",
		zap.String("tenant", t.Code), zap.Int("version", models.CurrentSchemaVersion))
	return nil
}

func schemaCurrent(ctx context.Context, db *gorm.DB) (bool, error) {
	if !db.Migrator().HasTable(&models.SchemaVersion{}) {
		return false, nil
	}
	var v models.SchemaVersion
	err := db.WithContext(ctx).First(&v, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.Version >= models.CurrentSchemaVersion, nil
}

// Drop closes the tenant's connection and removes its database and login.
func (p *Provisioner) Drop(ctx context.Context, t *models.Tenant) error {
	p.ready.Delete(t.Code)

	p.mu.Lock()
	name := DescriptorName(t)
	if db, ok := p.conns[name]; ok {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		delete(p.conns, name)
	}
	p.mu.Unlock()

	if t.DBName == "" {
		t.DBName = p.DatabaseName(t)
	}
	if err := p.driver.DropDatabase(ctx, p.admin, t); err != nil {
		return p.fail("drop", t, err)
	}
	p.log.Info("Tenant database dropped", zap.String("tenant", t.Code), zap.String("database", t.DBName))
	return nil
}

// Close releases every tenant connection.
func (p *Provisioner) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, db := range p.conns {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		delete(p.conns, name)
	}
}

func (p *Provisioner) fail(step string, t *models.Tenant, err error) error {
	metrics.ProvisionErrors.WithLabelValues(step).Inc()
	p.log.Error("Tenant provisioning step failed",
		zap.String("step", step), zap.String("tenant", t.Code), zap.Error(err))
	return fmt.Errorf("%s: %w", step, err)
}
