package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/sales"
	"go-pos-tenancy/internal/tenancy"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductInput is the writable part of a product.
type ProductInput struct {
	Name          string          `json:"name" binding:"required"`
	SKU           *string         `json:"sku"`
	CategoryID    *uint           `json:"category_id"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      string          `json:"image_url"`
}

// ProductUpdate is a partial update; nil fields are left alone.
type ProductUpdate struct {
	Name       *string          `json:"name"`
	SKU        *string          `json:"sku"`
	CategoryID *uint            `json:"category_id"`
	Price      *decimal.Decimal `json:"price"`
	CostPrice  *decimal.Decimal `json:"cost_price"`
	ImageURL   *string          `json:"image_url"`
}

func validatePrices(price, cost *decimal.Decimal) gin.H {
	errs := gin.H{}
	if price != nil && price.IsNegative() {
		errs["price"] = []string{"must not be negative"}
	}
	if cost != nil && cost.IsNegative() {
		errs["cost_price"] = []string{"must not be negative"}
	}
	return errs
}

// GetProducts lists the active tenant's products
func (h *Handler) GetProducts(c *gin.Context) {
	var products []models.Product
	q := h.Switcher.DB(c).Order("name")
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		q = q.Where("name LIKE ? OR sku = ?", "%"+search+"%", search)
	}
	if err := q.Find(&products).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// AddProduct creates a product within the tenant's product limit
func (h *Handler) AddProduct(c *gin.Context) {
	var in ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	errs := validatePrices(&in.Price, &in.CostPrice)
	if in.StockQuantity < 0 {
		errs["stock_quantity"] = []string{"must not be negative"}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "Invalid product", "errors": errs})
		return
	}

	db := h.Switcher.DB(c)
	if err := tenant.CheckProductLimit(c.Request.Context(), tenancy.Tenant(c), db); err != nil {
		respondError(c, err)
		return
	}

	product := models.Product{
		Name:          strings.TrimSpace(in.Name),
		SKU:           in.SKU,
		CategoryID:    in.CategoryID,
		Price:         in.Price.Round(2),
		CostPrice:     in.CostPrice.Round(2),
		StockQuantity: in.StockQuantity,
		ImageURL:      in.ImageURL,
	}
	if err := h.Sales.CreateProduct(c.Request.Context(), db, &product, userID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct changes catalog fields. Stock only moves through adjustments.
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in ProductUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if errs := validatePrices(in.Price, in.CostPrice); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "Invalid product", "errors": errs})
		return
	}

	db := h.Switcher.DB(c)
	var product models.Product
	if err := db.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = sales.ErrProductNotFound
		}
		respondError(c, err)
		return
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.SKU != nil {
		updates["sku"] = *in.SKU
	}
	if in.CategoryID != nil {
		updates["category_id"] = *in.CategoryID
	}
	if in.Price != nil {
		updates["price"] = in.Price.Round(2)
	}
	if in.CostPrice != nil {
		updates["cost_price"] = in.CostPrice.Round(2)
	}
	if in.ImageURL != nil {
		updates["image_url"] = *in.ImageURL
	}
	if len(updates) > 0 {
		if err := db.Model(&product).Updates(updates).Error; err != nil {
			respondError(c, err)
			return
		}
	}
	if err := db.First(&product, id).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Product updated successfully", "product": product})
}

// DeleteProduct removes a product that has never been sold
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	db := h.Switcher.DB(c)

	var sold int64
	if err := db.Model(&models.SaleItem{}).Where("product_id = ?", id).Count(&sold).Error; err != nil {
		respondError(c, err)
		return
	}
	if sold > 0 {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "Could not delete product. It is linked to past sales.",
		})
		return
	}

	res := db.Delete(&models.Product{}, id)
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, sales.ErrProductNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Product deleted successfully"})
}

// AdjustStock applies a manual stock correction
func (h *Handler) AdjustStock(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in struct {
		BranchID *uint  `json:"branch_id"`
		Delta    int    `json:"delta"`
		Note     string `json:"note"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	adj := sales.StockAdjustment{
		ProductID: id,
		BranchID:  in.BranchID,
		Delta:     in.Delta,
		Note:      in.Note,
		ActorID:   userID(c),
	}

	mv, err := h.Sales.AdjustStock(c.Request.Context(), h.Switcher.DB(c), adj)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "movement": mv})
}
