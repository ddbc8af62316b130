package sales

import (
	"testing"
	"time"

	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2026, 4, 15, 10, 30, 0, 0, time.UTC)

func setupTenantDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.DBConfig{Driver: "sqlite", SQLiteDir: t.TempDir(), LogLevel: logger.Silent}
	db, err := database.Open(cfg, database.Endpoint{Name: "tenant_test"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.TenantModels()...))
	require.NoError(t, db.Create(&models.Setting{
		ID:             1,
		RoundingPolicy: models.RoundingNone,
		RoundingMode:   models.RoundingModeNormal,
	}).Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestService() *Service {
	return &Service{now: func() time.Time { return fixedNow }}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func createProduct(t *testing.T, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: dec(price), CostPrice: dec("1"), StockQuantity: stock}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func stockOf(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.StockQuantity
}

func setRounding(t *testing.T, db *gorm.DB, policy, mode string) {
	t.Helper()
	require.NoError(t, db.Model(&models.Setting{ID: 1}).Updates(map[string]interface{}{
		"rounding_policy": policy,
		"rounding_mode":   mode,
	}).Error)
}

func cash(amount string) []PaymentInput {
	return []PaymentInput{{Method: "cash", Amount: dec(amount)}}
}
