package provision

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"

	"gorm.io/gorm"
)

// Identifiers are interpolated into DDL, so they are restricted to a safe alphabet.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,63}$`)

// Driver performs the dialect-specific parts of provisioning against the
// database server, using the master (admin) handle.
type Driver interface {
	Name() string
	DatabaseExists(ctx context.Context, admin *gorm.DB, name string) (bool, error)
	// CreateDatabase creates the database and the tenant's login. Both steps are idempotent.
	CreateDatabase(ctx context.Context, admin *gorm.DB, t *models.Tenant) error
	DropDatabase(ctx context.Context, admin *gorm.DB, t *models.Tenant) error
	// WithLock runs fn while holding a named lock shared by every process using this server.
	WithLock(ctx context.Context, admin *gorm.DB, key string, timeout time.Duration, fn func() error) error
	// Endpoint is where the tenant's own connection points.
	Endpoint(t *models.Tenant) database.Endpoint
}

// NewDriver picks the driver matching the configured dialect.
func NewDriver(cfg *config.Config) (Driver, error) {
	host := cfg.Tenancy.TenantDBHost
	if host == "" {
		host = cfg.DB.Host
	}
	switch cfg.DB.Driver {
	case "mysql":
		return &mysqlDriver{host: host, port: cfg.DB.Port}, nil
	case "postgres":
		return &postgresDriver{host: host, port: cfg.DB.Port}, nil
	case "sqlite":
		return newSQLiteDriver(&cfg.DB), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DB.Driver)
	}
}

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identPattern.MatchString(n) {
			return fmt.Errorf("unsafe identifier %q", n)
		}
	}
	return nil
}
