package sales

import (
	"context"
	"testing"

	"go-pos-tenancy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnClampsToSoldQuantity(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()
	ctx := context.Background()
	p := createProduct(t, db, "Mug", "1000", 10)

	sale, err := svc.Checkout(ctx, db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 2}},
		Payments: cash("2000"),
	})
	require.NoError(t, err)
	require.Equal(t, 8, stockOf(t, db, p.ID))

	ret, err := svc.ProcessReturn(ctx, db, ReturnRequest{
		SaleNumber: sale.Number,
		Items:      []ReturnLine{{SaleItemID: sale.Items[0].ID, Quantity: 3}},
		Method:     "cash",
		Reason:     "damaged",
		UserID:     4,
	})
	require.NoError(t, err)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, 2, ret.Items[0].Quantity)
	assertDec(t, "2000", ret.Total)
	assert.Regexp(t, `^RET-`, ret.Number)
	assert.Equal(t, 10, stockOf(t, db, p.ID))

	var stored models.SaleReturn
	require.NoError(t, db.First(&stored, ret.ID).Error)
	assertDec(t, "2000", stored.Total)

	var mv models.StockMovement
	require.NoError(t, db.Where("return_id = ?", ret.ID).First(&mv).Error)
	assert.Equal(t, models.DirectionIn, mv.Direction)
	assert.Equal(t, models.ReasonReturn, mv.Reason)
	assert.Equal(t, 2, mv.Quantity)
	assert.Equal(t, 8, mv.QuantityBefore)
	assert.Equal(t, 10, mv.QuantityAfter)

	_, err = svc.ProcessReturn(ctx, db, ReturnRequest{
		SaleNumber: sale.Number,
		Items:      []ReturnLine{{SaleItemID: sale.Items[0].ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrNothingToReturn)
	assert.Equal(t, 10, stockOf(t, db, p.ID))

	var returns int64
	require.NoError(t, db.Model(&models.SaleReturn{}).Count(&returns).Error)
	assert.Equal(t, int64(1), returns)
}

func TestPartialReturnsAccumulate(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()
	ctx := context.Background()
	p := createProduct(t, db, "Plate", "250", 10)

	sale, err := svc.Checkout(ctx, db, CheckoutRequest{
		Items:    []CartLine{{ProductID: p.ID, Quantity: 3}},
		Payments: cash("750"),
	})
	require.NoError(t, err)
	itemID := sale.Items[0].ID

	first, err := svc.ProcessReturn(ctx, db, ReturnRequest{SaleNumber: sale.Number, Items: []ReturnLine{{SaleItemID: itemID, Quantity: 1}}})
	require.NoError(t, err)
	assertDec(t, "250", first.Total)

	// The same line twice in one request still cannot exceed what remains.
	second, err := svc.ProcessReturn(ctx, db, ReturnRequest{SaleNumber: sale.Number, Items: []ReturnLine{
		{SaleItemID: itemID, Quantity: 2},
		{SaleItemID: itemID, Quantity: 2},
		{SaleItemID: 9999, Quantity: 1},
	}})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assertDec(t, "500", second.Total)
	assert.Equal(t, 10, stockOf(t, db, p.ID))
}

func TestReturnUnknownSale(t *testing.T) {
	db := setupTenantDB(t)
	_, err := newTestService().ProcessReturn(context.Background(), db, ReturnRequest{SaleNumber: "INV-NOPE"})
	assert.ErrorIs(t, err, ErrSaleNotFound)
}
