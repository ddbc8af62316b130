package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body,
// optionally prefixed with "sha256=".
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

// WebhookSignature rejects requests whose body is not signed with secret. It
// runs before tenant resolution, so unsigned calls never reach a tenant
// database. An empty secret rejects every request.
func WebhookSignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
		if err != nil || len(body) > maxWebhookBody {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "Unreadable webhook body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if secret == "" || !ValidSignature(secret, body, c.GetHeader(SignatureHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid webhook signature"})
			return
		}
		c.Next()
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares signature against the expected one in constant time
func ValidSignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
