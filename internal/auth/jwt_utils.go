package auth

import (
	"errors"
	"time"

	"go-pos-tenancy/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtKey         = []byte("change_me_pos_tenancy_dev_key")
	expirationTime = 24 * time.Hour
)

// Configure sets the signing key and token lifetime from config
func Configure(cfg *config.JWTConfig) {
	if cfg.SigningKey != "" {
		jwtKey = []byte(cfg.SigningKey)
	}
	if cfg.ExpirationHours > 0 {
		expirationTime = time.Duration(cfg.ExpirationHours) * time.Hour
	}
}

// Claims defines what is inside the token (The "ID Card").
// TenantID is nil for platform staff.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Role     string `json:"role"`
	TenantID *uint  `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a user
func GenerateToken(userID uint, role string, tenantID *uint) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expirationTime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

// ValidateToken checks if a token is fake or expired
func ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
