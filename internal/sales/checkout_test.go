package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCheckoutPaidInFull(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()
	p := createProduct(t, db, "Coffee", "1000", 10)

	sale, err := svc.Checkout(context.Background(), db, CheckoutRequest{
		Items:     []CartLine{{ProductID: p.ID, Quantity: 2}},
		Payments:  cash("2000"),
		CashierID: 1,
	})
	require.NoError(t, err)

	assertDec(t, "2000", sale.GrandTotal)
	assertDec(t, "0", sale.ChangeAmount)
	assertDec(t, "0", sale.RoundingAdjustment)
	assert.Equal(t, models.PaymentStatusPaid, sale.PaymentStatus)
	assert.Regexp(t, `^INV-20260415103000-[0-9A-F]{6}$`, sale.Number)
	assert.Nil(t, sale.FXCurrency)

	assert.Equal(t, 8, stockOf(t, db, p.ID))

	var moves []models.StockMovement
	require.NoError(t, db.Where("sale_id = ?", sale.ID).Find(&moves).Error)
	require.Len(t, moves, 1)
	assert.Equal(t, 10, moves[0].QuantityBefore)
	assert.Equal(t, 8, moves[0].QuantityAfter)
	assert.Equal(t, -2, moves[0].Quantity)
	assert.Equal(t, models.DirectionOut, moves[0].Direction)
	assert.Equal(t, models.ReasonSale, moves[0].Reason)
}

func TestCheckoutTotalsAndChange(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()
	setRounding(t, db, models.RoundingNearest100, models.RoundingModeNormal)
	a := createProduct(t, db, "Bread", "500", 10)
	b := createProduct(t, db, "Jam", "475", 10)

	sale, err := svc.Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 1}},
		Discount: dec("100"),
		Tax:      dec("75"),
		Payments: []PaymentInput{{Method: "cash", Amount: dec("1000")}, {Method: "card", Amount: dec("1000")}},
	})
	require.NoError(t, err)

	// 1475 - 100 + 75 = 1450, rounded up to 1500.
	assertDec(t, "1475", sale.Subtotal)
	assertDec(t, "1500", sale.GrandTotal)
	assertDec(t, "50", sale.RoundingAdjustment)
	assertDec(t, "2000", sale.PaidAmount)
	assertDec(t, "500", sale.ChangeAmount)
	assert.True(t, sale.PaidAmount.Sub(sale.GrandTotal).Equal(sale.ChangeAmount))

	stored, err := GetSale(context.Background(), db, sale.Number)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, it := range stored.Items {
		sum = sum.Add(it.Subtotal)
	}
	assert.True(t, sum.Equal(stored.Subtotal))
	assert.Len(t, stored.Payments, 2)
}

func TestCheckoutDiscountRoundingMode(t *testing.T) {
	db := setupTenantDB(t)
	setRounding(t, db, models.RoundingNearest1000, models.RoundingModeDiscount)
	p := createProduct(t, db, "Cake", "4700", 5)

	sale, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments: cash("4000"),
	})
	require.NoError(t, err)
	assertDec(t, "4000", sale.GrandTotal)
	assertDec(t, "-700", sale.RoundingAdjustment)
	assert.Equal(t, models.PaymentStatusPaid, sale.PaymentStatus)
}

func TestCheckoutPartialPaymentAndDiscountFloor(t *testing.T) {
	db := setupTenantDB(t)
	p := createProduct(t, db, "Tea", "100", 5)

	sale, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 3}},
		Payments: cash("50"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartial, sale.PaymentStatus)
	assertDec(t, "0", sale.ChangeAmount)

	sale, err = newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 1}},
		Discount: dec("500"),
		Payments: cash("10"),
	})
	require.NoError(t, err)
	assertDec(t, "0", sale.GrandTotal)
	assertDec(t, "10", sale.ChangeAmount)
}

func TestCheckoutAppliesPricingRules(t *testing.T) {
	db := setupTenantDB(t)
	cat := models.Category{Name: "Drinks"}
	require.NoError(t, db.Create(&cat).Error)
	p := models.Product{Name: "Soda", Price: dec("200"), CategoryID: &cat.ID, StockQuantity: 10}
	require.NoError(t, db.Create(&p).Error)
	other := createProduct(t, db, "Chips", "300", 10)

	require.NoError(t, db.Create(&models.PricingRule{
		Name: "drinks 25%", Type: models.RuleTypePercentage, Value: dec("25"), CategoryID: &cat.ID, Active: true,
	}).Error)

	sale, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 2}, {ProductID: other.ID, Quantity: 1}},
		Payments: cash("1000"),
	})
	require.NoError(t, err)
	require.Len(t, sale.Items, 2)
	assertDec(t, "200", sale.Items[0].OriginalPrice)
	assertDec(t, "150", sale.Items[0].UnitPrice)
	assertDec(t, "300", sale.Items[0].Subtotal)
	require.NotNil(t, sale.Items[0].PricingRuleID)
	assert.Nil(t, sale.Items[1].PricingRuleID)
	assertDec(t, "600", sale.Subtotal)
}

func TestCheckoutFXSnapshot(t *testing.T) {
	db := setupTenantDB(t)
	asOf := fixedNow.Add(-time.Hour)
	require.NoError(t, db.Model(&models.Setting{ID: 1}).Updates(map[string]interface{}{
		"fx_enabled":    true,
		"fx_currency":   "USD",
		"fx_rate":       dec("0.000064"),
		"fx_updated_at": asOf,
	}).Error)
	p := createProduct(t, db, "Tea", "100", 5)

	sale, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments: cash("100"),
	})
	require.NoError(t, err)
	require.NotNil(t, sale.FXCurrency)
	assert.Equal(t, "USD", *sale.FXCurrency)
	assert.True(t, sale.FXRate.Valid)
	assertDec(t, "0.000064", sale.FXRate.Decimal)
	require.NotNil(t, sale.FXCapturedAt)
	assert.True(t, sale.FXCapturedAt.Equal(asOf))
}

func TestCheckoutValidation(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()
	p := createProduct(t, db, "Tea", "100", 5)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 0}, {ProductID: 999, Quantity: 1}},
		Payments: cash("100"),
	})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.Checkout(ctx, db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments: []PaymentInput{{Method: "cash", Amount: dec("0")}, {Method: " ", Amount: dec("100")}},
	})
	assert.ErrorIs(t, err, ErrNoValidPayment)

	_, err = svc.Checkout(ctx, db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 1}},
		Discount: dec("-1"),
		Payments: cash("100"),
	})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	var count int64
	require.NoError(t, db.Model(&models.Sale{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 5, stockOf(t, db, p.ID))
}

func TestCheckoutStockNeverNegative(t *testing.T) {
	db := setupTenantDB(t)
	p := createProduct(t, db, "Rare", "10", 1)

	sale, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 3}},
		Payments: cash("30"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, db, p.ID))

	var mv models.StockMovement
	require.NoError(t, db.Where("sale_id = ?", sale.ID).First(&mv).Error)
	assert.Equal(t, 0, mv.QuantityAfter)
	assert.Equal(t, -1, mv.Quantity)
}

func TestCheckoutBranchStock(t *testing.T) {
	db := setupTenantDB(t)
	branch := models.Branch{Name: "Main"}
	require.NoError(t, db.Create(&branch).Error)
	p := createProduct(t, db, "Tea", "10", 50)
	require.NoError(t, db.Create(&models.BranchStock{ProductID: p.ID, BranchID: branch.ID, Quantity: 4}).Error)

	_, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 3}},
		Payments: cash("30"),
		BranchID: &branch.ID,
	})
	require.NoError(t, err)

	var bs models.BranchStock
	require.NoError(t, db.Where("product_id = ? AND branch_id = ?", p.ID, branch.ID).First(&bs).Error)
	assert.Equal(t, 1, bs.Quantity)
	assert.Equal(t, 50, stockOf(t, db, p.ID))
}

func failOnTable(t *testing.T, db *gorm.DB, name, table string) {
	t.Helper()
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			tx.AddError(errors.New("injected failure on " + table))
		}
	}))
}

func TestCheckoutRollsBackEverything(t *testing.T) {
	db := setupTenantDB(t)
	p := createProduct(t, db, "Tea", "100", 5)
	failOnTable(t, db, "fail_payments", "payments")

	_, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 2}},
		Payments: cash("200"),
	})
	require.Error(t, err)

	var sales, items, moves int64
	require.NoError(t, db.Model(&models.Sale{}).Count(&sales).Error)
	require.NoError(t, db.Model(&models.SaleItem{}).Count(&items).Error)
	require.NoError(t, db.Model(&models.StockMovement{}).Count(&moves).Error)
	assert.Zero(t, sales)
	assert.Zero(t, items)
	assert.Zero(t, moves)
	assert.Equal(t, 5, stockOf(t, db, p.ID))
}

func TestLedgerFailureKeepsSale(t *testing.T) {
	db := setupTenantDB(t)
	p := createProduct(t, db, "Tea", "100", 5)
	failOnTable(t, db, "fail_ledger", "stock_movements")

	sale, err := newTestService().Checkout(context.Background(), db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 2}},
		Payments: cash("200"),
	})
	require.NoError(t, err)
	require.NotNil(t, sale)

	assert.Equal(t, 3, stockOf(t, db, p.ID))
	var moves int64
	require.NoError(t, db.Model(&models.StockMovement{}).Count(&moves).Error)
	assert.Zero(t, moves)
}

// sqlite runs on one connection, so this only shows that concurrent checkouts
// serialize cleanly. TestStockUpdateIsComputedInDatabase pins the atomic update.
func TestConcurrentCheckoutsDoNotLoseUpdates(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()
	p := createProduct(t, db, "Tea", "10", 25)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), db, CheckoutRequest{
				Items:    []CartLine{{ProductID: p.ID, Quantity: 1}},
				Payments: cash("10"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 25-n, stockOf(t, db, p.ID))
	var sales int64
	require.NoError(t, db.Model(&models.Sale{}).Count(&sales).Error)
	assert.Equal(t, int64(n), sales)
}

func TestStockUpdateIsComputedInDatabase(t *testing.T) {
	db := setupTenantDB(t)
	p := createProduct(t, db, "Tea", "10", 5)

	var updates []string
	var vars [][]interface{}
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("capture_stock_sql", func(tx *gorm.DB) {
		updates = append(updates, tx.Statement.SQL.String())
		vars = append(vars, append([]interface{}(nil), tx.Statement.Vars...))
	}))

	before, after, err := applyStock(db, p.ID, nil, -7)
	require.NoError(t, err)
	assert.Equal(t, 5, before)
	assert.Equal(t, 0, after)
	assert.Equal(t, 0, stockOf(t, db, p.ID))

	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "CASE WHEN stock_quantity + ? >= 0 THEN stock_quantity + ? ELSE 0 END")
	assert.Equal(t, []interface{}{-7, -7}, vars[0][:2])
}

func TestCheckoutQuotaRunsInsideTransaction(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()
	p := createProduct(t, db, "Tea", "10", 5)
	errQuota := errors.New("quota reached")

	var seen []time.Time
	req := CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments: cash("10"),
		Quota: func(tx *gorm.DB, now time.Time) error {
			seen = append(seen, now)
			var n int64
			if err := tx.Model(&models.Sale{}).Count(&n).Error; err != nil {
				return err
			}
			if n >= 1 {
				return errQuota
			}
			return nil
		},
	}

	_, err := svc.Checkout(context.Background(), db, req)
	require.NoError(t, err)
	_, err = svc.Checkout(context.Background(), db, req)
	assert.ErrorIs(t, err, errQuota)

	assert.Equal(t, []time.Time{fixedNow, fixedNow}, seen)
	assert.Equal(t, 4, stockOf(t, db, p.ID))
	var n int64
	require.NoError(t, db.Model(&models.Sale{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
