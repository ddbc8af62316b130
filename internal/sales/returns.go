package sales

import (
	"context"
	"errors"

	"go-pos-tenancy/internal/metrics"
	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReturnLine asks to return quantity units of one sale line
type ReturnLine struct {
	SaleItemID uint `json:"sale_item_id"`
	Quantity   int  `json:"quantity"`
}

// ReturnRequest is the input of a refund
type ReturnRequest struct {
	SaleNumber string       `json:"sale_number" binding:"required"`
	Items      []ReturnLine `json:"items"`
	Method     string       `json:"method"`
	Reference  *string      `json:"reference"`
	Reason     string       `json:"reason"`
	UserID     uint         `json:"-"`
}

// ProcessReturn refunds lines of a sale. Each requested quantity is clamped to
// what is still returnable on its line (sold minus earlier returns), so a line
// can never be returned beyond what was sold.
func (s *Service) ProcessReturn(ctx context.Context, db *gorm.DB, req ReturnRequest) (*models.SaleReturn, error) {
	var ret *models.SaleReturn
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		// Locking the sale serializes concurrent returns against it.
		var sale models.Sale
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("number = ?", req.SaleNumber).First(&sale).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSaleNotFound
		}
		if err != nil {
			return err
		}

		var items []models.SaleItem
		if err := tx.Where("sale_id = ?", sale.ID).Find(&items).Error; err != nil {
			return err
		}
		byID := make(map[uint]models.SaleItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}

		returned, err := returnedQuantities(tx, sale.ID)
		if err != nil {
			return err
		}

		number, err := uniqueNumber(tx, &models.SaleReturn{}, ReturnPrefix, now)
		if err != nil {
			return err
		}
		ret = &models.SaleReturn{
			Number:    number,
			SaleID:    sale.ID,
			Total:     decimal.Zero,
			Method:    req.Method,
			Reference: req.Reference,
			Reason:    req.Reason,
			UserID:    req.UserID,
			CreatedAt: now,
		}
		if err := tx.Omit(clause.Associations).Create(ret).Error; err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range req.Items {
			item, ok := byID[line.SaleItemID]
			if !ok {
				continue
			}
			qty := line.Quantity
			if remaining := item.Quantity - returned[item.ID]; qty > remaining {
				qty = remaining
			}
			if qty <= 0 {
				continue
			}
			returned[item.ID] += qty

			subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
			ri := models.ReturnItem{
				ReturnID:   ret.ID,
				SaleItemID: item.ID,
				ProductID:  item.ProductID,
				Quantity:   qty,
				UnitPrice:  item.UnitPrice,
				Subtotal:   subtotal,
			}
			if err := tx.Create(&ri).Error; err != nil {
				return err
			}
			ret.Items = append(ret.Items, ri)
			total = total.Add(subtotal)

			before, after, err := applyStock(tx, item.ProductID, sale.BranchID, qty)
			if err != nil {
				return err
			}
			recordMovement(ctx, tx, &models.StockMovement{
				ProductID:      item.ProductID,
				BranchID:       sale.BranchID,
				Direction:      models.DirectionIn,
				Reason:         models.ReasonReturn,
				Quantity:       after - before,
				QuantityBefore: before,
				QuantityAfter:  after,
				ReturnID:       &ret.ID,
				SaleID:         &sale.ID,
				ActorID:        req.UserID,
			})
		}
		if len(ret.Items) == 0 {
			return ErrNothingToReturn
		}

		ret.Total = total
		return tx.Model(&models.SaleReturn{}).Where("id = ?", ret.ID).Update("total", total).Error
	})
	if err != nil {
		metrics.SalesOperations.WithLabelValues("return", "failed").Inc()
		return nil, err
	}
	metrics.SalesOperations.WithLabelValues("return", "ok").Inc()
	return ret, nil
}

func returnedQuantities(tx *gorm.DB, saleID uint) (map[uint]int, error) {
	var rows []struct {
		SaleItemID uint
		Quantity   int
	}
	err := tx.Model(&models.ReturnItem{}).
		Select("return_items.sale_item_id, SUM(return_items.quantity) AS quantity").
		Joins("JOIN sale_returns ON sale_returns.id = return_items.return_id").
		Where("sale_returns.sale_id = ?", saleID).
		Group("return_items.sale_item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int, len(rows))
	for _, r := range rows {
		out[r.SaleItemID] = r.Quantity
	}
	return out, nil
}
