package database

import (
	"time"

	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesReportResult holds revenue figures for one tenant and period
type SalesReportResult struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalRefunds decimal.Decimal `json:"total_refunds"`
	TotalCount   int64           `json:"total_count"`
}

// GetSalesReport calculates sales within a date range on the given tenant handle
func GetSalesReport(db *gorm.DB, start, end time.Time) (*SalesReportResult, error) {
	var result SalesReportResult

	// COALESCE ensures we get 0 instead of NULL if no sales exist
	var revenue float64
	err := db.Model(&models.Sale{}).
		Where("created_at BETWEEN ? AND ?", start, end).
		Select("COALESCE(SUM(grand_total), 0)").
		Scan(&revenue).Error
	if err != nil {
		return nil, err
	}
	result.TotalRevenue = decimal.NewFromFloat(revenue).Round(2)

	var refunds float64
	err = db.Model(&models.SaleReturn{}).
		Where("created_at BETWEEN ? AND ?", start, end).
		Select("COALESCE(SUM(total), 0)").
		Scan(&refunds).Error
	if err != nil {
		return nil, err
	}
	result.TotalRefunds = decimal.NewFromFloat(refunds).Round(2)

	err = db.Model(&models.Sale{}).
		Where("created_at BETWEEN ? AND ?", start, end).
		Count(&result.TotalCount).Error
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// CountSalesSince counts sales created at or after since. Used for the monthly transaction limit.
func CountSalesSince(db *gorm.DB, since time.Time) (int64, error) {
	var n int64
	err := db.Model(&models.Sale{}).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}
