package sales

import (
	"context"

	"go-pos-tenancy/internal/models"

	"gorm.io/gorm"
)

// CreateProduct inserts a product and books its opening stock through the
// ledger in the same transaction. Opening stock must not be negative.
func (s *Service) CreateProduct(ctx context.Context, db *gorm.DB, p *models.Product, actorID uint) error {
	if p.StockQuantity < 0 {
		return ErrNegativeStock
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		if p.StockQuantity == 0 {
			return nil
		}
		return tx.Create(&models.StockMovement{
			ProductID:      p.ID,
			Direction:      models.DirectionIn,
			Reason:         models.ReasonAdjustment,
			Quantity:       p.StockQuantity,
			QuantityBefore: 0,
			QuantityAfter:  p.StockQuantity,
			UnitCost:       p.CostPrice,
			ActorID:        actorID,
			Note:           "opening stock",
		}).Error
	})
}
