package provision

import (
	"context"
	"fmt"
	"time"

	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"

	"gorm.io/gorm"
)

type postgresDriver struct {
	host string
	port string
}

func (d *postgresDriver) Name() string { return "postgres" }

func (d *postgresDriver) DatabaseExists(ctx context.Context, admin *gorm.DB, name string) (bool, error) {
	var n int64
	err := admin.WithContext(ctx).Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", name).Scan(&n).Error
	return n > 0, err
}

func (d *postgresDriver) roleExists(ctx context.Context, admin *gorm.DB, name string) (bool, error) {
	var n int64
	err := admin.WithContext(ctx).Raw("SELECT COUNT(*) FROM pg_roles WHERE rolname = ?", name).Scan(&n).Error
	return n > 0, err
}

// CreateDatabase has no IF NOT EXISTS form in postgres, so both the role and
// the database are probed first. Callers hold the provisioning lock.
func (d *postgresDriver) CreateDatabase(ctx context.Context, admin *gorm.DB, t *models.Tenant) error {
	if err := checkIdent(t.DBName, t.DBUsername); err != nil {
		return err
	}
	db := admin.WithContext(ctx)

	ok, err := d.roleExists(ctx, admin, t.DBUsername)
	if err != nil {
		return err
	}
	if !ok {
		if err := db.Exec(fmt.Sprintf(`CREATE ROLE "%s" LOGIN PASSWORD '%s'`, t.DBUsername, t.DBPassword)).Error; err != nil {
			return err
		}
	}

	ok, err = d.DatabaseExists(ctx, admin, t.DBName)
	if err != nil {
		return err
	}
	if !ok {
		if err := db.Exec(fmt.Sprintf(`CREATE DATABASE "%s" OWNER "%s" ENCODING 'UTF8'`, t.DBName, t.DBUsername)).Error; err != nil {
			return err
		}
	}
	return nil
}

func (d *postgresDriver) DropDatabase(ctx context.Context, admin *gorm.DB, t *models.Tenant) error {
	if err := checkIdent(t.DBName); err != nil {
		return err
	}
	db := admin.WithContext(ctx)
	if err := db.Exec(fmt.Sprintf(`DROP DATABASE IF EXISTS "%s" WITH (FORCE)`, t.DBName)).Error; err != nil {
		return err
	}
	if t.DBUsername != "" {
		if err := checkIdent(t.DBUsername); err != nil {
			return err
		}
		return db.Exec(fmt.Sprintf(`DROP ROLE IF EXISTS "%s"`, t.DBUsername)).Error
	}
	return nil
}

// WithLock polls pg_try_advisory_lock on a pinned session until timeout.
func (d *postgresDriver) WithLock(ctx context.Context, admin *gorm.DB, key string, timeout time.Duration, fn func() error) error {
	return admin.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		deadline := time.Now().Add(timeout)
		for {
			var got bool
			if err := conn.Raw("SELECT pg_try_advisory_lock(hashtext(?))", key).Scan(&got).Error; err != nil {
				return err
			}
			if got {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("timed out waiting for lock %s", key)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
		defer conn.Exec("SELECT pg_advisory_unlock(hashtext(?))", key)
		return fn()
	})
}

func (d *postgresDriver) Endpoint(t *models.Tenant) database.Endpoint {
	return database.Endpoint{Host: d.host, Port: d.port, Name: t.DBName, User: t.DBUsername, Password: t.DBPassword}
}
