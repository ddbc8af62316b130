package handlers

import (
	"net/http"
	"strings"

	"go-pos-tenancy/internal/auth"
	"go-pos-tenancy/internal/logger"
	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/tenancy"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates against the master catalog. When the request resolved a
// tenant, only that tenant's users (and platform staff) may sign in through it.
func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	var user models.User
	if err := h.Switcher.Master().WithContext(c.Request.Context()).
		Where("username = ?", strings.TrimSpace(input.Username)).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	if t := tenancy.Tenant(c); t != nil && user.Role != models.RoleSuperAdmin {
		if user.TenantID == nil || *user.TenantID != t.ID {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid credentials"})
			return
		}
	}

	token, err := auth.GenerateToken(user.ID, user.Role, user.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     token,
		"role":      user.Role,
		"username":  user.Username,
		"tenant_id": user.TenantID,
	})
}

// Register creates a user in the active tenant. The first user of a tenant
// becomes its admin; everyone after that starts as a cashier.
func (h *Handler) Register(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	t := tenancy.Tenant(c)
	if t == nil {
		respondError(c, tenant.ErrContextMissing)
		return
	}
	master := h.Switcher.Master().WithContext(c.Request.Context())
	if err := tenant.CheckUserLimit(c.Request.Context(), t, master); err != nil {
		respondError(c, err)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, err)
		return
	}

	var existing int64
	if err := master.Model(&models.User{}).Where("tenant_id = ?", t.ID).Count(&existing).Error; err != nil {
		respondError(c, err)
		return
	}
	role := models.RoleCashier
	if existing == 0 {
		role = models.RoleAdmin
	}

	tenantID := t.ID
	user := models.User{
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: string(hashedPassword),
		Role:         role,
		TenantID:     &tenantID,
	}
	if err := master.Create(&user).Error; err != nil {
		logger.FromGin(c).Warn("Registration rejected", zap.String("username", user.Username), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "User likely already exists",
			"errors":  gin.H{"username": []string{"already taken"}},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "User created successfully!", "user": user})
}
