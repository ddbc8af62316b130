package sales

import (
	"time"

	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// activeRules loads rules that are switched on and whose window contains now,
// newest first.
func activeRules(tx *gorm.DB, now time.Time) ([]models.PricingRule, error) {
	var rules []models.PricingRule
	err := tx.Where("active = ?", true).
		Where("starts_at IS NULL OR starts_at <= ?", now).
		Where("ends_at IS NULL OR ends_at >= ?", now).
		Order("created_at desc").Order("id desc").
		Find(&rules).Error
	return rules, err
}

// matchRule returns the single rule that applies to a product: product scope
// beats category scope beats global, and within a scope the newest rule wins.
// rules must already be ordered newest first.
func matchRule(rules []models.PricingRule, p *models.Product) *models.PricingRule {
	var byCategory, global *models.PricingRule
	for i := range rules {
		r := &rules[i]
		switch {
		case r.ProductID != nil:
			if *r.ProductID == p.ID {
				return r
			}
		case r.CategoryID != nil:
			if byCategory == nil && p.CategoryID != nil && *r.CategoryID == *p.CategoryID {
				byCategory = r
			}
		default:
			if global == nil {
				global = r
			}
		}
	}
	if byCategory != nil {
		return byCategory
	}
	return global
}

// applyRule computes the effective unit price. A percentage rule discounts the
// original price, a fixed rule replaces it. The result is never negative.
func applyRule(price decimal.Decimal, r *models.PricingRule) decimal.Decimal {
	if r == nil {
		return price
	}
	out := price
	switch r.Type {
	case models.RuleTypePercentage:
		out = price.Sub(price.Mul(r.Value).Div(hundred)).Round(2)
	case models.RuleTypeFixed:
		out = r.Value
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
