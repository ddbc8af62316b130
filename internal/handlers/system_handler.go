package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/tenancy"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetSetupStatus tells the client whether the host it is on belongs to a
// tenant and whether that tenant still needs its first user.
func (h *Handler) GetSetupStatus(c *gin.Context) {
	t := tenancy.Tenant(c)
	if t == nil {
		c.JSON(http.StatusOK, gin.H{"tenant": nil, "setup_required": false})
		return
	}

	var users int64
	if err := h.Switcher.Master().WithContext(c.Request.Context()).
		Model(&models.User{}).Where("tenant_id = ?", t.ID).Count(&users).Error; err != nil {
		respondError(c, err)
		return
	}

	settings, err := h.loadSettings(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant": gin.H{
			"name":   t.Name,
			"slug":   t.Slug,
			"status": t.Status,
		},
		"setup_required": users == 0,
		"settings":       settings,
	})
}

func (h *Handler) loadSettings(c *gin.Context) (*models.Setting, error) {
	var s models.Setting
	err := h.Switcher.DB(c).First(&s, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Setting{ID: 1, RoundingPolicy: models.RoundingNone, RoundingMode: models.RoundingModeNormal}, nil
	}
	return &s, err
}

// SettingsRequest is a partial update of the tenant settings row.
type SettingsRequest struct {
	RoundingPolicy *string          `json:"rounding_policy"`
	RoundingMode   *string          `json:"rounding_mode"`
	FXEnabled      *bool            `json:"fx_enabled"`
	FXCurrency     *string          `json:"fx_currency"`
	FXRate         *decimal.Decimal `json:"fx_rate"`
}

func (r SettingsRequest) validate() gin.H {
	errs := gin.H{}
	if r.RoundingPolicy != nil {
		switch *r.RoundingPolicy {
		case models.RoundingNone, models.RoundingNearest100, models.RoundingNearest1000:
		default:
			errs["rounding_policy"] = []string{"must be none, nearest_100 or nearest_1000"}
		}
	}
	if r.RoundingMode != nil {
		switch *r.RoundingMode {
		case models.RoundingModeNormal, models.RoundingModeDiscount:
		default:
			errs["rounding_mode"] = []string{"must be normal or discount"}
		}
	}
	if r.FXCurrency != nil && len(strings.TrimSpace(*r.FXCurrency)) != 3 {
		errs["fx_currency"] = []string{"must be a 3 letter currency code"}
	}
	if r.FXRate != nil && !r.FXRate.IsPositive() {
		errs["fx_rate"] = []string{"must be positive"}
	}
	return errs
}

// UpdateSettings changes rounding and FX settings. Changing the rate stamps
// the time it was captured, which sales later snapshot.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "Invalid settings", "errors": errs})
		return
	}

	settings, err := h.loadSettings(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.RoundingPolicy != nil {
		settings.RoundingPolicy = *req.RoundingPolicy
	}
	if req.RoundingMode != nil {
		settings.RoundingMode = *req.RoundingMode
	}
	if req.FXEnabled != nil {
		settings.FXEnabled = *req.FXEnabled
	}
	if req.FXCurrency != nil {
		settings.FXCurrency = strings.ToUpper(strings.TrimSpace(*req.FXCurrency))
	}
	if req.FXRate != nil {
		settings.FXRate = decimal.NewNullDecimal(*req.FXRate)
		now := h.now().UTC()
		settings.FXUpdatedAt = &now
	}

	if err := h.Switcher.DB(c).Save(settings).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settings})
}
