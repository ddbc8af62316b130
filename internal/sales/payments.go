package sales

import (
	"context"
	"errors"
	"strings"

	"go-pos-tenancy/internal/metrics"
	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordPayment applies a later payment to a sale, typically from a payment
// provider webhook. A payment whose reference was already recorded against the
// sale is a no-op, so providers may redeliver safely. The returned bool reports
// whether a new payment row was written.
func (s *Service) RecordPayment(ctx context.Context, db *gorm.DB, saleNumber string, in PaymentInput) (*models.Sale, bool, error) {
	if !in.valid() {
		return nil, false, ErrNoValidPayment
	}
	if in.Reference != nil {
		ref := strings.TrimSpace(*in.Reference)
		if ref == "" {
			in.Reference = nil
		} else {
			in.Reference = &ref
		}
	}

	var (
		sale    models.Sale
		created bool
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("number = ?", saleNumber).First(&sale).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSaleNotFound
		}
		if err != nil {
			return err
		}

		if in.Reference != nil {
			var existing models.Payment
			err := tx.Where("reference = ?", *in.Reference).First(&existing).Error
			if err == nil {
				if existing.SaleID != sale.ID {
					return ErrDuplicateReference
				}
				return tx.Preload("Payments").First(&sale, sale.ID).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		row := models.Payment{
			SaleID:    sale.ID,
			Method:    strings.TrimSpace(in.Method),
			Amount:    in.Amount,
			Reference: in.Reference,
			PaidAt:    s.now(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		created = true

		var payments []models.Payment
		if err := tx.Where("sale_id = ?", sale.ID).Order("id").Find(&payments).Error; err != nil {
			return err
		}
		paid := decimal.Zero
		for _, p := range payments {
			paid = paid.Add(p.Amount)
		}
		sale.PaidAmount = paid
		sale.ChangeAmount = change(paid, sale.GrandTotal)
		sale.PaymentStatus = paymentStatus(paid, sale.GrandTotal)
		sale.Payments = payments

		return tx.Model(&models.Sale{}).Where("id = ?", sale.ID).Updates(map[string]interface{}{
			"paid_amount":    sale.PaidAmount,
			"change_amount":  sale.ChangeAmount,
			"payment_status": sale.PaymentStatus,
		}).Error
	})
	if err != nil {
		metrics.SalesOperations.WithLabelValues("payment", "failed").Inc()
		return nil, false, err
	}
	outcome := "ok"
	if !created {
		outcome = "duplicate"
	}
	metrics.SalesOperations.WithLabelValues("payment", outcome).Inc()
	return &sale, created, nil
}
