package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds the master (catalog) database configuration. Tenant databases
// are created on the same server with the same admin credentials.
type DBConfig struct {
	Driver          string // mysql, postgres or sqlite
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	Params          string
	SQLiteDir       string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// TenancyConfig controls how requests are mapped to tenants and how tenant
// databases are named.
type TenancyConfig struct {
	BaseDomain         string
	ReservedSubdomains []string
	DatabasePrefix     string
	TenantDBHost       string
	LockTimeout        time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port              string
	Env               string
	Debug             bool
	AllowedOrigins    []string
	AllowRegistration bool

	// WebhookSecret signs payment webhooks. Empty disables the webhook routes.
	WebhookSecret string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// AIConfig holds the Gemini assistant configuration
type AIConfig struct {
	APIKey string
	Model  string
}

// EventsConfig holds the AMQP publisher configuration. An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// Config holds all configuration
type Config struct {
	DB      DBConfig
	Tenancy TenancyConfig
	Server  ServerConfig
	JWT     JWTConfig
	Log     LogConfig
	Metrics MetricsConfig
	AI      AIConfig
	Events  EventsConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	cfg := &Config{
		DB: DBConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "3306"),
			User:            getEnv("DB_USER", "root"),
			Password:        getEnv("DB_PASSWORD", "password"),
			Name:            getEnv("DB_NAME", "pos_master"),
			Params:          getEnv("DB_PARAMS", "charset=utf8mb4&parseTime=True&loc=Local"),
			SQLiteDir:       getEnv("DB_SQLITE_DIR", "./data"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Tenancy: TenancyConfig{
			BaseDomain:         strings.ToLower(getEnv("APP_BASE_DOMAIN", "localhost")),
			ReservedSubdomains: getEnvAsList("TENANT_RESERVED_SUBDOMAINS", []string{"www", "api", "admin", "app", "dashboard", "mail"}),
			DatabasePrefix:     getEnv("TENANT_DB_PREFIX", "tenant_"),
			TenantDBHost:       getEnv("TENANT_DB_HOST", ""),
			LockTimeout:        getEnvAsDuration("TENANT_LOCK_TIMEOUT", 30*time.Second),
		},
		Server: ServerConfig{
			Port:              getEnv("SERVER_PORT", "8080"),
			Env:               getEnv("APP_ENV", "development"),
			Debug:             getEnvAsBool("APP_DEBUG", false),
			AllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			AllowRegistration: getEnvAsBool("ALLOW_REGISTRATION", false),
			WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "change-me"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "pos"),
		},
		AI: AIConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "pos.events"),
		},
	}

	if cfg.Tenancy.TenantDBHost == "" {
		cfg.Tenancy.TenantDBHost = cfg.DB.Host
	}

	switch cfg.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// LogFields returns the non-secret configuration as zap fields
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_driver", c.DB.Driver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.Name),
		zap.String("base_domain", c.Tenancy.BaseDomain),
		zap.String("server_port", c.Server.Port),
		zap.Bool("debug", c.Server.Debug),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
