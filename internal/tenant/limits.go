package tenant

import (
	"context"
	"fmt"
	"time"

	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"

	"gorm.io/gorm"
)

// CheckProductLimit fails with ErrLimitReached when creating one more product
// would exceed the tenant's plan. Zero means unlimited.
func CheckProductLimit(ctx context.Context, t *models.Tenant, tenantDB *gorm.DB) error {
	if t == nil || t.MaxProducts <= 0 {
		return nil
	}
	var n int64
	if err := tenantDB.WithContext(ctx).Model(&models.Product{}).Count(&n).Error; err != nil {
		return err
	}
	if n >= int64(t.MaxProducts) {
		return Wrap(ErrLimitReached, nil, fmt.Sprintf("Product limit of %d reached", t.MaxProducts))
	}
	return nil
}

// CheckTransactionLimit enforces the monthly sale count of the tenant's plan.
func CheckTransactionLimit(ctx context.Context, t *models.Tenant, tenantDB *gorm.DB, now time.Time) error {
	if t == nil || t.MaxTransactions <= 0 {
		return nil
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	n, err := database.CountSalesSince(tenantDB.WithContext(ctx), monthStart)
	if err != nil {
		return err
	}
	if n >= int64(t.MaxTransactions) {
		return Wrap(ErrLimitReached, nil, fmt.Sprintf("Monthly transaction limit of %d reached", t.MaxTransactions))
	}
	return nil
}

// CheckUserLimit enforces the number of users attached to the tenant in the master catalog.
func CheckUserLimit(ctx context.Context, t *models.Tenant, master *gorm.DB) error {
	if t == nil || t.MaxUsers <= 0 {
		return nil
	}
	var n int64
	if err := master.WithContext(ctx).Model(&models.User{}).Where("tenant_id = ?", t.ID).Count(&n).Error; err != nil {
		return err
	}
	if n >= int64(t.MaxUsers) {
		return Wrap(ErrLimitReached, nil, fmt.Sprintf("User limit of %d reached", t.MaxUsers))
	}
	return nil
}
