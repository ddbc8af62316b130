package sales

import (
	"testing"

	"go-pos-tenancy/internal/models"
)

func TestRoundTotal(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		policy     string
		mode       string
		total      string
		adjustment string
	}{
		{"no rounding", "1450.50", models.RoundingNone, models.RoundingModeNormal, "1450.50", "0"},
		{"normal rounds half up", "1450", models.RoundingNearest100, models.RoundingModeNormal, "1500", "50"},
		{"normal rounds down", "1449", models.RoundingNearest100, models.RoundingModeNormal, "1400", "-49"},
		{"discount floors", "4700", models.RoundingNearest1000, models.RoundingModeDiscount, "4000", "-700"},
		{"discount exact stays", "4000", models.RoundingNearest1000, models.RoundingModeDiscount, "4000", "0"},
		{"discount small total", "999", models.RoundingNearest1000, models.RoundingModeDiscount, "0", "-999"},
		{"normal thousands", "4500", models.RoundingNearest1000, models.RoundingModeNormal, "5000", "500"},
		{"unknown policy is none", "123", "nearest_7", models.RoundingModeNormal, "123", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, adj := RoundTotal(dec(tt.raw), tt.policy, tt.mode)
			assertDec(t, tt.total, total)
			assertDec(t, tt.adjustment, adj)
		})
	}
}

func TestDiscountModeNeverIncreases(t *testing.T) {
	for _, raw := range []string{"0", "1", "99.99", "100", "150", "1999.99", "1000000.01"} {
		for _, policy := range []string{models.RoundingNearest100, models.RoundingNearest1000} {
			total, adj := RoundTotal(dec(raw), policy, models.RoundingModeDiscount)
			if total.GreaterThan(dec(raw)) || adj.IsPositive() {
				t.Fatalf("raw %s policy %s rounded up to %s", raw, policy, total)
			}
		}
	}
}
