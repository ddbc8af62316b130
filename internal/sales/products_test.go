package sales

import (
	"context"
	"testing"

	"go-pos-tenancy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProductBooksOpeningStock(t *testing.T) {
	db := setupTenantDB(t)
	svc := newTestService()

	p := models.Product{Name: "Flour", Price: dec("20"), CostPrice: dec("12"), StockQuantity: 8}
	require.NoError(t, svc.CreateProduct(context.Background(), db, &p, 4))

	var moves []models.StockMovement
	require.NoError(t, db.Where("product_id = ?", p.ID).Find(&moves).Error)
	require.Len(t, moves, 1)
	assert.Equal(t, models.ReasonAdjustment, moves[0].Reason)
	assert.Equal(t, models.DirectionIn, moves[0].Direction)
	assert.Equal(t, 0, moves[0].QuantityBefore)
	assert.Equal(t, 8, moves[0].QuantityAfter)
	assert.Equal(t, 8, moves[0].Quantity)
	assert.Equal(t, uint(4), moves[0].ActorID)
	assertDec(t, "12", moves[0].UnitCost)
}

func TestCreateProductWithoutStockWritesNoLedgerRow(t *testing.T) {
	db := setupTenantDB(t)

	p := models.Product{Name: "Gift card", Price: dec("50")}
	require.NoError(t, newTestService().CreateProduct(context.Background(), db, &p, 1))

	var moves int64
	require.NoError(t, db.Model(&models.StockMovement{}).Count(&moves).Error)
	assert.Zero(t, moves)
}

func TestCreateProductRejectsNegativeStock(t *testing.T) {
	db := setupTenantDB(t)

	p := models.Product{Name: "Broken", Price: dec("1"), StockQuantity: -5}
	err := newTestService().CreateProduct(context.Background(), db, &p, 1)
	assert.ErrorIs(t, err, ErrNegativeStock)

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateProductRollsBackWhenLedgerFails(t *testing.T) {
	db := setupTenantDB(t)
	failOnTable(t, db, "fail_opening", "stock_movements")

	p := models.Product{Name: "Salt", Price: dec("3"), StockQuantity: 4}
	require.Error(t, newTestService().CreateProduct(context.Background(), db, &p, 1))

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}
