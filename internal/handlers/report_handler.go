package handlers

import (
	"net/http"
	"sort"
	"time"

	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type TopSeller struct {
	ProductName string          `json:"product_name"`
	Sold        int             `json:"sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// ReportData defines the shape of our analytics response
type ReportData struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	database.SalesReportResult
	TopSelling  []TopSeller   `json:"top_selling"`
	RecentSales []models.Sale `json:"recent_sales"`
}

// reportRange reads start/end dates, defaulting to the current month. End is inclusive.
func (h *Handler) reportRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := h.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)

	if s := c.Query("start"); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "Invalid date", "errors": gin.H{"start": []string{"use YYYY-MM-DD"}}})
			return start, end, false
		}
		start = d
	}
	if s := c.Query("end"); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "Invalid date", "errors": gin.H{"end": []string{"use YYYY-MM-DD"}}})
			return start, end, false
		}
		end = d.Add(24*time.Hour - time.Second)
	}
	return start, end, true
}

// GetSalesReport - GET /api/reports
func (h *Handler) GetSalesReport(c *gin.Context) {
	start, end, ok := h.reportRange(c)
	if !ok {
		return
	}
	db := h.Switcher.DB(c)

	summary, err := database.GetSalesReport(db, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	data := ReportData{Start: start, End: end, SalesReportResult: *summary}

	var rows []struct {
		ProductName string
		Sold        int
		Revenue     float64
	}
	err = db.Table("sale_items").
		Select("products.name as product_name, SUM(sale_items.quantity) as sold, SUM(sale_items.subtotal) as revenue").
		Joins("JOIN products ON sale_items.product_id = products.id").
		Joins("JOIN sales ON sale_items.sale_id = sales.id").
		Where("sales.created_at BETWEEN ? AND ?", start, end).
		Group("products.name").
		Order("sold desc").
		Limit(5).
		Scan(&rows).Error
	if err != nil {
		respondError(c, err)
		return
	}
	data.TopSelling = make([]TopSeller, 0, len(rows))
	for _, r := range rows {
		data.TopSelling = append(data.TopSelling, TopSeller{
			ProductName: r.ProductName,
			Sold:        r.Sold,
			Revenue:     decimal.NewFromFloat(r.Revenue).Round(2),
		})
	}

	if err := db.Order("created_at desc").Order("id desc").Limit(10).Find(&data.RecentSales).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// ValuationItem is one product line of the stock valuation
type ValuationItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"cost_price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// CategoryGroup is one category table of the valuation
type CategoryGroup struct {
	CategoryName string          `json:"category_name"`
	Items        []ValuationItem `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type ValuationResponse struct {
	Categories []CategoryGroup `json:"categories"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// GetStockValuation - GET /api/reports/valuation. Values global stock at cost.
func (h *Handler) GetStockValuation(c *gin.Context) {
	db := h.Switcher.DB(c)

	var products []models.Product
	if err := db.Order("name").Find(&products).Error; err != nil {
		respondError(c, err)
		return
	}
	var categories []models.Category
	if err := db.Find(&categories).Error; err != nil {
		respondError(c, err)
		return
	}
	names := make(map[uint]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}

	grandTotal := decimal.Zero
	groupedMap := make(map[string]*CategoryGroup)
	for _, p := range products {
		catName := "Uncategorized"
		if p.CategoryID != nil && names[*p.CategoryID] != "" {
			catName = names[*p.CategoryID]
		}
		group, exists := groupedMap[catName]
		if !exists {
			group = &CategoryGroup{CategoryName: catName, Items: []ValuationItem{}, Subtotal: decimal.Zero}
			groupedMap[catName] = group
		}

		itemTotal := p.CostPrice.Mul(decimal.NewFromInt(int64(p.StockQuantity)))
		group.Items = append(group.Items, ValuationItem{
			Name:      p.Name,
			Quantity:  p.StockQuantity,
			CostPrice: p.CostPrice,
			TotalCost: itemTotal,
		})
		group.Subtotal = group.Subtotal.Add(itemTotal)
		grandTotal = grandTotal.Add(itemTotal)
	}

	response := ValuationResponse{Categories: []CategoryGroup{}, GrandTotal: grandTotal}
	for _, group := range groupedMap {
		response.Categories = append(response.Categories, *group)
	}
	sort.Slice(response.Categories, func(i, j int) bool {
		return response.Categories[i].CategoryName < response.Categories[j].CategoryName
	})

	c.JSON(http.StatusOK, response)
}
