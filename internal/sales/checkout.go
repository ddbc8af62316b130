package sales

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-pos-tenancy/internal/metrics"
	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service runs the transactional sales operations against whichever tenant
// handle it is given.
type Service struct {
	now func() time.Time
}

// NewService creates a sales service stamping documents in UTC
func NewService() *Service {
	return &Service{now: func() time.Time { return time.Now().UTC() }}
}

// CartLine is one requested product and quantity
type CartLine struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// PaymentInput is one tender offered at checkout or via webhook
type PaymentInput struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference *string         `json:"reference"`
}

func (p PaymentInput) valid() bool {
	return p.Amount.IsPositive() && strings.TrimSpace(p.Method) != ""
}

// CheckoutRequest defines what the Frontend sends us
type CheckoutRequest struct {
	Items     []CartLine      `json:"items"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
	Payments  []PaymentInput  `json:"payments"`
	BranchID  *uint           `json:"branch_id"`
	CashierID uint            `json:"-"`

	// Quota, when set, runs inside the checkout transaction after other
	// quota-limited checkouts of the tenant are locked out.
	Quota func(tx *gorm.DB, now time.Time) error `json:"-"`
}

type pricedLine struct {
	product  models.Product
	quantity int
	price    decimal.Decimal
	rule     *models.PricingRule
}

// Checkout records a sale atomically: items, stock decrements, ledger rows and
// payments either all land or none do. Ledger rows are the one exception and
// are best effort.
func (s *Service) Checkout(ctx context.Context, db *gorm.DB, req CheckoutRequest) (*models.Sale, error) {
	if req.Discount.IsNegative() || req.Tax.IsNegative() {
		return nil, ErrNegativeAmount
	}

	var sale *models.Sale
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()

		if req.Quota != nil {
			var lock []models.Setting
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", 1).Find(&lock).Error; err != nil {
				return err
			}
			if err := req.Quota(tx, now); err != nil {
				return err
			}
		}

		lines, err := resolveLines(tx, req.Items, now)
		if err != nil {
			return err
		}

		setting, err := loadSetting(tx)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		for _, l := range lines {
			subtotal = subtotal.Add(l.price.Mul(decimal.NewFromInt(int64(l.quantity))))
		}
		raw := subtotal.Sub(req.Discount).Add(req.Tax)
		if raw.IsNegative() {
			raw = decimal.Zero
		}
		grand, adjustment := RoundTotal(raw, setting.RoundingPolicy, setting.RoundingMode)

		var payments []PaymentInput
		paid := decimal.Zero
		for _, p := range req.Payments {
			if p.valid() {
				payments = append(payments, p)
				paid = paid.Add(p.Amount)
			}
		}
		if len(payments) == 0 {
			return ErrNoValidPayment
		}

		number, err := uniqueNumber(tx, &models.Sale{}, SalePrefix, now)
		if err != nil {
			return err
		}

		sale = &models.Sale{
			Number:             number,
			Subtotal:           subtotal,
			Discount:           req.Discount,
			Tax:                req.Tax,
			RoundingPolicy:     setting.RoundingPolicy,
			RoundingMode:       setting.RoundingMode,
			RoundingAdjustment: adjustment,
			GrandTotal:         grand,
			PaymentStatus:      paymentStatus(paid, grand),
			PaidAmount:         paid,
			ChangeAmount:       change(paid, grand),
			CashierID:          req.CashierID,
			BranchID:           req.BranchID,
			CreatedAt:          now,
		}
		if setting.FXEnabled && setting.FXRate.Valid && setting.FXRate.Decimal.IsPositive() {
			currency := setting.FXCurrency
			capturedAt := now
			if setting.FXUpdatedAt != nil {
				capturedAt = *setting.FXUpdatedAt
			}
			sale.FXCurrency = &currency
			sale.FXRate = setting.FXRate
			sale.FXCapturedAt = &capturedAt
		}
		if err := tx.Omit(clause.Associations).Create(sale).Error; err != nil {
			return err
		}

		for _, l := range lines {
			qty := decimal.NewFromInt(int64(l.quantity))
			item := models.SaleItem{
				SaleID:        sale.ID,
				ProductID:     l.product.ID,
				Quantity:      l.quantity,
				OriginalPrice: l.product.Price,
				UnitPrice:     l.price,
				Subtotal:      l.price.Mul(qty),
			}
			if l.rule != nil {
				item.PricingRuleID = &l.rule.ID
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			sale.Items = append(sale.Items, item)

			before, after, err := applyStock(tx, l.product.ID, req.BranchID, -l.quantity)
			if err != nil {
				return err
			}
			recordMovement(ctx, tx, &models.StockMovement{
				ProductID:      l.product.ID,
				BranchID:       req.BranchID,
				Direction:      models.DirectionOut,
				Reason:         models.ReasonSale,
				Quantity:       after - before,
				QuantityBefore: before,
				QuantityAfter:  after,
				UnitCost:       l.product.CostPrice,
				SaleID:         &sale.ID,
				ActorID:        req.CashierID,
			})
		}

		for _, p := range payments {
			row := models.Payment{
				SaleID:    sale.ID,
				Method:    strings.TrimSpace(p.Method),
				Amount:    p.Amount,
				Reference: p.Reference,
				PaidAt:    now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			sale.Payments = append(sale.Payments, row)
		}
		return nil
	})
	if err != nil {
		metrics.SalesOperations.WithLabelValues("checkout", "failed").Inc()
		return nil, err
	}
	metrics.SalesOperations.WithLabelValues("checkout", "ok").Inc()
	return sale, nil
}

func resolveLines(tx *gorm.DB, items []CartLine, now time.Time) ([]pricedLine, error) {
	var rules []models.PricingRule
	var lines []pricedLine
	loaded := false
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		var p models.Product
		err := tx.First(&p, it.ProductID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !loaded {
			if rules, err = activeRules(tx, now); err != nil {
				return nil, err
			}
			loaded = true
		}
		rule := matchRule(rules, &p)
		lines = append(lines, pricedLine{product: p, quantity: it.Quantity, price: applyRule(p.Price, rule), rule: rule})
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	return lines, nil
}

// loadSetting reads the settings row, falling back to no rounding and no FX.
func loadSetting(tx *gorm.DB) (models.Setting, error) {
	setting := models.Setting{RoundingPolicy: models.RoundingNone, RoundingMode: models.RoundingModeNormal}
	err := tx.First(&setting, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return setting, nil
	}
	return setting, err
}

func paymentStatus(paid, grand decimal.Decimal) string {
	if paid.GreaterThanOrEqual(grand) {
		return models.PaymentStatusPaid
	}
	return models.PaymentStatusPartial
}

func change(paid, grand decimal.Decimal) decimal.Decimal {
	if paid.GreaterThan(grand) {
		return paid.Sub(grand)
	}
	return decimal.Zero
}

// GetSale loads a sale with its items and payments by number
func GetSale(ctx context.Context, db *gorm.DB, number string) (*models.Sale, error) {
	var sale models.Sale
	err := db.WithContext(ctx).Preload("Items").Preload("Payments").Where("number = ?", number).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}
