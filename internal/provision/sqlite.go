package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"

	"gorm.io/gorm"
)

// sqliteDriver keeps one file per tenant. Locks are process-local since a
// sqlite directory is never shared between servers.
type sqliteDriver struct {
	cfg   *config.DBConfig
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSQLiteDriver(cfg *config.DBConfig) *sqliteDriver {
	return &sqliteDriver{cfg: cfg, locks: make(map[string]*sync.Mutex)}
}

func (d *sqliteDriver) Name() string { return "sqlite" }

func (d *sqliteDriver) DatabaseExists(_ context.Context, _ *gorm.DB, name string) (bool, error) {
	_, err := os.Stat(database.SQLitePath(d.cfg, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (d *sqliteDriver) CreateDatabase(_ context.Context, _ *gorm.DB, t *models.Tenant) error {
	if err := checkIdent(t.DBName); err != nil {
		return err
	}
	if err := os.MkdirAll(d.cfg.SQLiteDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(database.SQLitePath(d.cfg, t.DBName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (d *sqliteDriver) DropDatabase(_ context.Context, _ *gorm.DB, t *models.Tenant) error {
	if err := checkIdent(t.DBName); err != nil {
		return err
	}
	path := database.SQLitePath(d.cfg, t.DBName)
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (d *sqliteDriver) WithLock(ctx context.Context, _ *gorm.DB, key string, timeout time.Duration, fn func() error) error {
	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &sync.Mutex{}
		d.locks[key] = l
	}
	d.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-ctx.Done():
		go func() { <-acquired; l.Unlock() }()
		return ctx.Err()
	case <-time.After(timeout):
		go func() { <-acquired; l.Unlock() }()
		return fmt.Errorf("timed out waiting for lock %s", key)
	}
	defer l.Unlock()
	return fn()
}

func (d *sqliteDriver) Endpoint(t *models.Tenant) database.Endpoint {
	return database.Endpoint{Name: t.DBName}
}
