package middleware

import (
	"net/http"
	"strings"

	"go-pos-tenancy/internal/auth"
	"go-pos-tenancy/internal/models"
	"go-pos-tenancy/internal/tenant"

	"github.com/gin-gonic/gin"
)

const callerKey = "caller"

// AuthMiddleware checks if the user has a valid JWT token
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, msg := parseBearer(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
			return
		}
		setCaller(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches the caller when a valid token is present and lets
// anonymous requests through.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, _ := parseBearer(c); claims != nil {
			setCaller(c, claims)
		}
		c.Next()
	}
}

func parseBearer(c *gin.Context) (*auth.Claims, string) {
	// Format: "Bearer <token>"
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, "Authorization header is required"
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, "Authorization header must start with Bearer"
	}
	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		return nil, "Invalid or expired token"
	}
	return claims, ""
}

func setCaller(c *gin.Context, claims *auth.Claims) {
	c.Set("userID", claims.UserID)
	c.Set("role", claims.Role)
	c.Set(callerKey, &tenant.Caller{UserID: claims.UserID, Role: claims.Role, TenantID: claims.TenantID})
}

// CallerFrom returns the authenticated caller, or nil for anonymous requests.
func CallerFrom(c *gin.Context) *tenant.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(*tenant.Caller); ok {
			return caller
		}
	}
	return nil
}

// RequireRole is a secondary guard that checks for specific permissions.
// Super admins pass every role check.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == models.RoleSuperAdmin {
			c.Next()
			return
		}
		for _, r := range allowedRoles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "You do not have permission to access this resource",
		})
	}
}
