package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Endpoint locates one logical database on the configured server.
type Endpoint struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// Dialector builds the gorm dialector for an endpoint using the configured driver.
func Dialector(cfg *config.DBConfig, ep Endpoint) gorm.Dialector {
	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			ep.Host, ep.Port, ep.User, ep.Password, ep.Name, cfg.SSLMode)
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	case "sqlite":
		return sqlite.Open(SQLitePath(cfg, ep.Name) + "?_busy_timeout=5000&_foreign_keys=on")
	default:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", ep.User, ep.Password, ep.Host, ep.Port, ep.Name)
		if cfg.Params != "" {
			dsn += "?" + cfg.Params
		}
		return mysql.Open(dsn)
	}
}

// SQLitePath is the file backing a database name under the sqlite driver.
func SQLitePath(cfg *config.DBConfig, name string) string {
	return filepath.Join(cfg.SQLiteDir, name+".db")
}

// Open opens a pooled connection to one endpoint and applies pool settings.
func Open(cfg *config.DBConfig, ep Endpoint) (*gorm.DB, error) {
	db, err := gorm.Open(Dialector(cfg, ep), &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows one writer; serialize through a single connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// MasterEndpoint is the catalog database described by the config.
func MasterEndpoint(cfg *config.DBConfig) Endpoint {
	return Endpoint{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
	}
}

// Connect opens the master catalog (retrying while the server comes up) and migrates it.
func Connect(cfg *config.DBConfig, log *zap.Logger) (*gorm.DB, error) {
	if cfg.Driver == "sqlite" {
		if err := os.MkdirAll(cfg.SQLiteDir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < 5; i++ {
		db, err = Open(cfg, MasterEndpoint(cfg))
		if err == nil {
			break
		}
		log.Warn("Failed to connect to master database, retrying",
			zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect master database after 5 attempts: %w", err)
	}

	if err := db.AutoMigrate(models.MasterModels()...); err != nil {
		return nil, fmt.Errorf("migrate master database: %w", err)
	}

	log.Info("Master database connected and migrated", zap.String("driver", cfg.Driver))
	return db, nil
}
