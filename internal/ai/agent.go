package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-pos-tenancy/internal/config"
	"go-pos-tenancy/internal/database"
	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/sales"
	"go-pos-tenancy/internal/tenant"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("AI assistant is not configured")

const maxToolRounds = 5

// catalog books opening stock for products the assistant creates.
var catalog = sales.NewService()

// Agent answers questions about one tenant's shop. Every tool runs against
// the handle it is given, so it can only ever see the active tenant's data.
type Agent struct {
	apiKey string
	model  string
}

// NewAgent creates an agent from config
func NewAgent(cfg *config.AIConfig) *Agent {
	return &Agent{apiKey: cfg.APIKey, model: cfg.Model}
}

var tools = []*genai.Tool{
	{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "Get the full inventory list. Use this to find ANY product details like ID, Name, Price, Cost, or Stock.",
			},
			{
				Name:        "update_product_price",
				Description: "Update the price of a specific product using its ID",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"product_id": {Type: genai.TypeInteger, Description: "ID of the product"},
						"new_price":  {Type: genai.TypeNumber, Description: "New price"},
					},
					Required: []string{"product_id", "new_price"},
				},
			},
			{
				Name:        "create_product",
				Description: "Add a new product to the inventory",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":           {Type: genai.TypeString, Description: "Name of the product"},
						"price":          {Type: genai.TypeNumber, Description: "Price of the product"},
						"stock_quantity": {Type: genai.TypeInteger, Description: "Initial stock count"},
					},
					Required: []string{"name", "price", "stock_quantity"},
				},
			},
			{
				Name:        "get_sales_report",
				Description: "Get total sales revenue, refunds and count for a date range.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
		},
	},
}

// Ask runs one conversation turn, executing tool calls until the model answers in text.
func (a *Agent) Ask(ctx context.Context, db *gorm.DB, t *models.Tenant, userMessage string) (string, error) {
	if a.apiKey == "" {
		return "", ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)
	model.Tools = tools

	today := time.Now().Format("2006-01-02")
	systemPrompt := fmt.Sprintf(`SYSTEM: Today is %s. You are the POS Assistant of the shop %q.

	RULES:
	1. UPDATE: If a user asks to update a product by NAME (e.g. "Update Banana price"), you must NOT ask them for the ID. Instead:
	   - Call 'check_inventory' to find the ID.
	   - Call 'update_product_price' using that ID.

	2. READ: If a user asks for PRICE, COST, STOCK, or DETAILS of a product:
	   - You MUST call 'check_inventory' to get the full list.
	   - Then read the result to find the specific item and answer the user.

	3. SALES: If the user asks for sales/revenue, use 'get_sales_report'.

	USER: %s`, today, t.Name, userMessage)

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(systemPrompt))
	if err != nil {
		return "", err
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return printResponse(resp), nil
		}
		var replies []genai.Part
		for _, call := range calls {
			result, err := executeTool(ctx, db, t, call)
			if err != nil {
				result = map[string]interface{}{"error": err.Error()}
			}
			replies = append(replies, genai.FunctionResponse{Name: call.Name, Response: result})
		}
		if resp, err = session.SendMessage(ctx, replies...); err != nil {
			return "", err
		}
	}
	return printResponse(resp), nil
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if fc, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

// executeTool runs one tool call against the tenant handle and returns the
// payload sent back to the model.
func executeTool(ctx context.Context, db *gorm.DB, t *models.Tenant, call genai.FunctionCall) (map[string]interface{}, error) {
	db = db.WithContext(ctx)
	switch call.Name {
	case "check_inventory":
		var products []models.Product
		if err := db.Order("id").Find(&products).Error; err != nil {
			return nil, err
		}
		type simpleProduct struct {
			ID    uint   `json:"id"`
			Name  string `json:"name"`
			Stock int    `json:"stock"`
			Price string `json:"price"`
			Cost  string `json:"cost"`
		}
		list := make([]simpleProduct, 0, len(products))
		for _, p := range products {
			list = append(list, simpleProduct{ID: p.ID, Name: p.Name, Stock: p.StockQuantity, Price: p.Price.String(), Cost: p.CostPrice.String()})
		}
		return map[string]interface{}{"inventory": list}, nil

	case "update_product_price":
		id, ok1 := number(call.Args["product_id"])
		price, ok2 := number(call.Args["new_price"])
		if !ok1 || !ok2 || price < 0 {
			return nil, errors.New("product_id and a non-negative new_price are required")
		}
		res := db.Model(&models.Product{}).Where("id = ?", uint(id)).Update("price", decimal.NewFromFloat(price).Round(2))
		if res.Error != nil {
			return nil, res.Error
		}
		status := "Success"
		if res.RowsAffected == 0 {
			status = "Product ID not found"
		}
		return map[string]interface{}{"status": status, "new_price": price}, nil

	case "create_product":
		name, _ := call.Args["name"].(string)
		price, ok1 := number(call.Args["price"])
		stock, ok2 := number(call.Args["stock_quantity"])
		if name == "" || !ok1 || !ok2 || price < 0 {
			return nil, errors.New("name, price and stock_quantity are required")
		}
		if stock < 0 {
			return nil, sales.ErrNegativeStock
		}
		if err := tenant.CheckProductLimit(ctx, t, db); err != nil {
			return nil, err
		}
		p := models.Product{Name: name, Price: decimal.NewFromFloat(price).Round(2), StockQuantity: int(stock)}
		if err := catalog.CreateProduct(ctx, db, &p, 0); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "created", "id": p.ID}, nil

	case "get_sales_report":
		startStr, _ := call.Args["start_date"].(string)
		endStr, _ := call.Args["end_date"].(string)
		start, err1 := time.Parse("2006-01-02", startStr)
		end, err2 := time.Parse("2006-01-02", endStr)
		if err1 != nil || err2 != nil {
			return nil, errors.New("dates must be in YYYY-MM-DD format")
		}
		report, err := database.GetSalesReport(db, start, end.Add(24*time.Hour-time.Second))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"revenue":     report.TotalRevenue.String(),
			"refunds":     report.TotalRefunds.String(),
			"sales_count": report.TotalCount,
		}, nil
	}
	return nil, fmt.Errorf("unknown tool %q", call.Name)
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func printResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "I completed the action."
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt)
		}
	}
	return "I completed the action."
}
