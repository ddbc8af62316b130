package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Everything in this file lives inside a tenant's isolated database. None of
// these tables carry a tenant id: isolation comes from the connection.

// Product - The Inventory. StockQuantity is the legacy global stock figure used
// when a sale is not scoped to a branch.
type Product struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:150;not null" json:"name"`
	SKU           *string         `gorm:"size:64;uniqueIndex" json:"sku,omitempty"`
	CategoryID    *uint           `gorm:"index" json:"category_id,omitempty"`
	Price         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"price"`
	CostPrice     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"cost_price"`
	StockQuantity int             `gorm:"not null;default:0" json:"stock_quantity"`
	ImageURL      string          `json:"image_url"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Category groups products for pricing rules and reporting.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Branch is a physical outlet of the tenant.
type Branch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BranchStock is the per-branch stock row for a product.
type BranchStock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID uint      `gorm:"uniqueIndex:idx_branch_product;not null" json:"product_id"`
	BranchID  uint      `gorm:"uniqueIndex:idx_branch_product;not null" json:"branch_id"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pricing rule types
const (
	RuleTypePercentage = "percentage"
	RuleTypeFixed      = "fixed"
)

// PricingRule adjusts a product's price at checkout. Scope is the product when
// ProductID is set, otherwise the category when CategoryID is set, otherwise global.
type PricingRule struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Name       string          `gorm:"size:100" json:"name"`
	Type       string          `gorm:"size:20;not null" json:"type"`
	Value      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"value"`
	ProductID  *uint           `gorm:"index" json:"product_id,omitempty"`
	CategoryID *uint           `gorm:"index" json:"category_id,omitempty"`
	Active     bool            `gorm:"not null;default:true" json:"active"`
	StartsAt   *time.Time      `json:"starts_at,omitempty"`
	EndsAt     *time.Time      `json:"ends_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Rounding policies and modes
const (
	RoundingNone        = "none"
	RoundingNearest100  = "nearest_100"
	RoundingNearest1000 = "nearest_1000"

	RoundingModeNormal   = "normal"
	RoundingModeDiscount = "discount"
)

// Setting is the tenant's single settings row (ID 1).
type Setting struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	RoundingPolicy string              `gorm:"size:20;not null;default:'none'" json:"rounding_policy"`
	RoundingMode   string              `gorm:"size:20;not null;default:'normal'" json:"rounding_mode"`
	FXEnabled      bool                `gorm:"not null;default:false" json:"fx_enabled"`
	FXCurrency     string              `gorm:"size:3" json:"fx_currency"`
	FXRate         decimal.NullDecimal `gorm:"type:decimal(18,6)" json:"fx_rate"`
	FXUpdatedAt    *time.Time          `json:"fx_updated_at,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Payment statuses
const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPartial = "partial"
)

// Sale - The Transaction Header. Immutable after creation except for the
// payment-derived fields (PaidAmount, ChangeAmount, PaymentStatus).
type Sale struct {
	ID                 uint                `gorm:"primaryKey" json:"id"`
	Number             string              `gorm:"size:40;uniqueIndex;not null" json:"number"`
	Subtotal           decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"subtotal"`
	Discount           decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"discount"`
	Tax                decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"tax"`
	RoundingPolicy     string              `gorm:"size:20" json:"rounding_policy"`
	RoundingMode       string              `gorm:"size:20" json:"rounding_mode"`
	RoundingAdjustment decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"rounding_adjustment"`
	GrandTotal         decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"grand_total"`
	FXCurrency         *string             `gorm:"size:3" json:"fx_currency,omitempty"`
	FXRate             decimal.NullDecimal `gorm:"type:decimal(18,6)" json:"fx_rate"`
	FXCapturedAt       *time.Time          `json:"fx_captured_at,omitempty"`
	PaymentStatus      string              `gorm:"size:20;not null" json:"payment_status"`
	PaidAmount         decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"paid_amount"`
	ChangeAmount       decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"change_amount"`
	CashierID          uint                `gorm:"index" json:"cashier_id"`
	BranchID           *uint               `gorm:"index" json:"branch_id,omitempty"`
	CreatedAt          time.Time           `gorm:"index" json:"created_at"`
	Items              []SaleItem          `gorm:"foreignKey:SaleID" json:"items"`
	Payments           []Payment           `gorm:"foreignKey:SaleID" json:"payments"`
}

// SaleItem - The specific items in a cart
type SaleItem struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	SaleID        uint            `gorm:"index;not null" json:"sale_id"`
	ProductID     uint            `gorm:"index;not null" json:"product_id"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	OriginalPrice decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"original_price"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"unit_price"` // Snapshot of price at time of sale
	PricingRuleID *uint           `json:"pricing_rule_id,omitempty"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"subtotal"`
}

// Payment is one tender applied to a sale.
type Payment struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	SaleID    uint            `gorm:"index;not null" json:"sale_id"`
	Method    string          `gorm:"size:30;not null" json:"method"`
	Amount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Reference *string         `gorm:"size:100;index" json:"reference,omitempty"`
	PaidAt    time.Time       `json:"paid_at"`
}

// Stock movement directions and reasons
const (
	DirectionIn  = "in"
	DirectionOut = "out"

	ReasonSale       = "sale"
	ReasonReturn     = "return"
	ReasonAdjustment = "adjustment"
)

// StockMovement is an append-only ledger row. It is never updated or deleted.
type StockMovement struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ProductID      uint            `gorm:"index;not null" json:"product_id"`
	BranchID       *uint           `gorm:"index" json:"branch_id,omitempty"`
	Direction      string          `gorm:"size:3;not null" json:"direction"`
	Reason         string          `gorm:"size:20;not null" json:"reason"`
	Quantity       int             `gorm:"not null" json:"quantity"` // signed delta
	QuantityBefore int             `gorm:"not null" json:"quantity_before"`
	QuantityAfter  int             `gorm:"not null" json:"quantity_after"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"unit_cost"`
	SaleID         *uint           `gorm:"index" json:"sale_id,omitempty"`
	ReturnID       *uint           `gorm:"index" json:"return_id,omitempty"`
	ActorID        uint            `json:"actor_id"`
	Note           string          `gorm:"size:255" json:"note"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SaleReturn mirrors Sale for refunds.
type SaleReturn struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Number    string          `gorm:"size:40;uniqueIndex;not null" json:"number"`
	SaleID    uint            `gorm:"index;not null" json:"sale_id"`
	Total     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total"`
	Method    string          `gorm:"size:30" json:"method"`
	Reference *string         `gorm:"size:100" json:"reference,omitempty"`
	Reason    string          `gorm:"size:255" json:"reason"`
	UserID    uint            `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []ReturnItem    `gorm:"foreignKey:ReturnID" json:"items"`
}

// ReturnItem mirrors SaleItem for refunds.
type ReturnItem struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ReturnID   uint            `gorm:"index;not null" json:"return_id"`
	SaleItemID uint            `gorm:"index;not null" json:"sale_item_id"`
	ProductID  uint            `gorm:"not null" json:"product_id"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"unit_price"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"subtotal"`
}

// Shift statuses
const (
	ShiftOpen   = "open"
	ShiftClosed = "closed"
)

// Shift is a cashier's till session.
type Shift struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	CashierID uint `gorm:"index;not null" json:"cashier_id"`

	// OpenCashierID mirrors CashierID while the shift is open and is NULL once
	// closed, so the unique index allows one open shift per cashier.
	OpenCashierID *uint               `gorm:"uniqueIndex" json:"-"`
	BranchID      *uint               `json:"branch_id,omitempty"`
	Status        string              `gorm:"size:10;index;not null" json:"status"`
	OpeningCash   decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"opening_cash"`
	CashIn        decimal.Decimal     `gorm:"type:decimal(15,2);not null;default:0" json:"cash_in"`
	ChangeGiven   decimal.Decimal     `gorm:"type:decimal(15,2);not null;default:0" json:"change_given"`
	ExpectedCash  decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"expected_cash"`
	ClosingCash   decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"closing_cash"`
	Difference    decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"difference"`
	OpenedAt      time.Time           `json:"opened_at"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
}

// Service is a bookable service (haircut, consultation, ...).
type Service struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Name            string          `gorm:"size:100;not null" json:"name"`
	DurationMinutes int             `gorm:"not null" json:"duration_minutes"`
	Price           decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"price"`
	Active          bool            `gorm:"not null;default:true" json:"active"`
}

// Appointment statuses
const (
	AppointmentScheduled = "scheduled"
	AppointmentConfirmed = "confirmed"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

// Appointment books a service with a staff member.
type Appointment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ServiceID    uint      `gorm:"index;not null" json:"service_id"`
	StaffID      uint      `gorm:"index;not null" json:"staff_id"`
	CustomerName string    `gorm:"size:100;not null" json:"customer_name"`
	StartsAt     time.Time `gorm:"index;not null" json:"starts_at"`
	EndsAt       time.Time `gorm:"not null" json:"ends_at"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	Note         string    `gorm:"size:255" json:"note"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CurrentSchemaVersion is bumped whenever TenantModels changes shape.
const CurrentSchemaVersion = 2

// SchemaVersion records the migration set applied to a tenant database.
type SchemaVersion struct {
	ID        uint      `gorm:"primaryKey"`
	Version   int       `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TenantModels is the full migration set for a tenant database.
func TenantModels() []interface{} {
	return []interface{}{
		&Category{},
		&Branch{},
		&Product{},
		&BranchStock{},
		&PricingRule{},
		&Setting{},
		&Sale{},
		&SaleItem{},
		&Payment{},
		&StockMovement{},
		&SaleReturn{},
		&ReturnItem{},
		&Shift{},
		&Service{},
		&Appointment{},
		&SchemaVersion{},
	}
}
