package sales

import (
	"context"
	"errors"

	"go-pos-tenancy/internal/logger"
	"go-pos-tenancy/internal/metrics"
	"go-pos-tenancy/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// applyStock changes a product's stock by delta, on the branch row when
// branchID is set, otherwise on the product's global figure. It returns the
// quantity before and after.
func applyStock(tx *gorm.DB, productID uint, branchID *uint, delta int) (before, after int, err error) {
	if branchID != nil {
		row := models.BranchStock{ProductID: productID, BranchID: *branchID}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(models.BranchStock{ProductID: productID, BranchID: *branchID}).
			FirstOrCreate(&row).Error
		if err != nil {
			return 0, 0, err
		}
		before = row.Quantity
		err = tx.Model(&models.BranchStock{}).Where("id = ?", row.ID).
			Update("quantity", gorm.Expr(stockExpr("quantity"), delta, delta)).Error
	} else {
		var p models.Product
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "stock_quantity").First(&p, productID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, ErrProductNotFound
		}
		if err != nil {
			return 0, 0, err
		}
		before = p.StockQuantity
		err = tx.Model(&models.Product{}).Where("id = ?", productID).
			Update("stock_quantity", gorm.Expr(stockExpr("stock_quantity"), delta, delta)).Error
	}
	if err != nil {
		return 0, 0, err
	}
	after = before + delta
	if after < 0 {
		after = 0
	}
	return before, after, nil
}

// stockExpr applies a signed delta in the database and never lets stock go
// below zero, so concurrent writers cannot lose updates.
func stockExpr(column string) string {
	return "CASE WHEN " + column + " + ? >= 0 THEN " + column + " + ? ELSE 0 END"
}

// recordMovement appends a ledger row inside a savepoint. A failure is logged
// and counted, and the surrounding transaction carries on.
func recordMovement(ctx context.Context, tx *gorm.DB, m *models.StockMovement) {
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(m).Error
	})
	if err != nil {
		metrics.LedgerFailures.WithLabelValues(m.Reason).Inc()
		logger.FromContext(ctx).Warn("Stock movement not recorded",
			zap.Uint("product_id", m.ProductID),
			zap.String("reason", m.Reason),
			zap.Int("quantity", m.Quantity),
			zap.Error(err),
		)
	}
}

func direction(delta int) string {
	if delta < 0 {
		return models.DirectionOut
	}
	return models.DirectionIn
}

// StockAdjustment is a manual correction of a product's stock.
type StockAdjustment struct {
	ProductID uint   `json:"product_id" binding:"required"`
	BranchID  *uint  `json:"branch_id"`
	Delta     int    `json:"delta" binding:"required"`
	Note      string `json:"note"`
	ActorID   uint   `json:"-"`
}

// AdjustStock applies a signed correction and writes its ledger row. Unlike
// sale and return movements the ledger row is part of the operation: if it
// cannot be written, nothing changes.
func (s *Service) AdjustStock(ctx context.Context, db *gorm.DB, adj StockAdjustment) (*models.StockMovement, error) {
	if adj.Delta == 0 {
		return nil, ErrInvalidAdjustment
	}
	var mv *models.StockMovement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.Select("id", "cost_price").First(&p, adj.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		before, after, err := applyStock(tx, adj.ProductID, adj.BranchID, adj.Delta)
		if err != nil {
			return err
		}
		mv = &models.StockMovement{
			ProductID:      adj.ProductID,
			BranchID:       adj.BranchID,
			Direction:      direction(adj.Delta),
			Reason:         models.ReasonAdjustment,
			Quantity:       after - before,
			QuantityBefore: before,
			QuantityAfter:  after,
			UnitCost:       p.CostPrice,
			ActorID:        adj.ActorID,
			Note:           adj.Note,
		}
		return tx.Create(mv).Error
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}
