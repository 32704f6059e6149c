// internal/middleware/webhook_middleware.go
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"tuma-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request
// body, keyed with the secret shared with the external collaborator.
const SignatureHeader = "X-Webhook-Signature"

type WebhookMiddleware struct {
	secret []byte
}

func NewWebhookMiddleware(secret string) *WebhookMiddleware {
	return &WebhookMiddleware{secret: []byte(secret)}
}

// Verify authenticates an inbound webhook by checking the body signature.
// The body is restored afterwards so the handler can still bind it.
func (m *WebhookMiddleware) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		sig := c.GetHeader(SignatureHeader)
		if sig == "" {
			response.Error(c, http.StatusUnauthorized, "missing webhook signature", nil)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "unreadable request body", err)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, m.secret)
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(sig)) {
			response.Error(c, http.StatusUnauthorized, "invalid webhook signature", nil)
			return
		}

		c.Next()
	}
}
