package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func webhookRouter(secret string) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.POST("/hook", WebhookSignature(secret), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		seen = string(body)
		c.Status(http.StatusNoContent)
	})
	return r, &seen
}

func postHook(r *gin.Engine, body, signature string) int {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestWebhookSignature(t *testing.T) {
	r, seen := webhookRouter("s3cret")
	body := `{"sale_number":"INV-1"}`

	assert.Equal(t, http.StatusUnauthorized, postHook(r, body, ""))
	assert.Equal(t, http.StatusUnauthorized, postHook(r, body, "not-hex"))
	assert.Equal(t, http.StatusUnauthorized, postHook(r, body, Sign("other", []byte(body))))
	assert.Empty(t, *seen)

	assert.Equal(t, http.StatusNoContent, postHook(r, body, Sign("s3cret", []byte(body))))
	assert.Equal(t, body, *seen, "handler still reads the full body")
	assert.Equal(t, http.StatusNoContent, postHook(r, body, "sha256="+Sign("s3cret", []byte(body))))
}

func TestWebhookWithoutSecretRejectsAll(t *testing.T) {
	r, _ := webhookRouter("")
	assert.Equal(t, http.StatusUnauthorized, postHook(r, "{}", Sign("", []byte("{}"))))
}
