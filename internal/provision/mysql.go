package provision

import (
	"context"
	"fmt"
	"time"

	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"

	"gorm.io/gorm"
)

type mysqlDriver struct {
	host string
	port string
}

func (d *mysqlDriver) Name() string { return "mysql" }

func (d *mysqlDriver) DatabaseExists(ctx context.Context, admin *gorm.DB, name string) (bool, error) {
	var n int64
	err := admin.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", name).
		Scan(&n).Error
	return n > 0, err
}

func (d *mysqlDriver) CreateDatabase(ctx context.Context, admin *gorm.DB, t *models.Tenant) error {
	if err := checkIdent(t.DBName, t.DBUsername); err != nil {
		return err
	}
	db := admin.WithContext(ctx)
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", t.DBName),
		fmt.Sprintf("CREATE USER IF NOT EXISTS '%s'@'%%' IDENTIFIED BY '%s'", t.DBUsername, t.DBPassword),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'%%'", t.DBName, t.DBUsername),
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}

func (d *mysqlDriver) DropDatabase(ctx context.Context, admin *gorm.DB, t *models.Tenant) error {
	if err := checkIdent(t.DBName); err != nil {
		return err
	}
	db := admin.WithContext(ctx)
	if err := db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", t.DBName)).Error; err != nil {
		return err
	}
	if t.DBUsername != "" {
		if err := checkIdent(t.DBUsername); err != nil {
			return err
		}
		return db.Exec(fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", t.DBUsername)).Error
	}
	return nil
}

// WithLock uses GET_LOCK, which belongs to a session, so it is taken and
// released on one pinned connection.
func (d *mysqlDriver) WithLock(ctx context.Context, admin *gorm.DB, key string, timeout time.Duration, fn func() error) error {
	return admin.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var got int
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", key, int(timeout.Seconds())).Scan(&got).Error; err != nil {
			return err
		}
		if got != 1 {
			return fmt.Errorf("timed out waiting for lock %s", key)
		}
		defer conn.Exec("SELECT RELEASE_LOCK(?)", key)
		return fn()
	})
}

func (d *mysqlDriver) Endpoint(t *models.Tenant) database.Endpoint {
	return database.Endpoint{Host: d.host, Port: d.port, Name: t.DBName, User: t.DBUsername, Password: t.DBPassword}
}
