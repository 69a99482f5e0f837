package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/risk-engine/pkg/common"
)

// InternalAPIKeyHeader carries the shared secret between internal callers and this service.
const InternalAPIKeyHeader = "X-Internal-API-Key"

// InternalAPIKey validates requests against a shared secret using
// constant-time comparison. An empty expected key rejects everything.
func InternalAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			common.ErrorResponse(c, http.StatusInternalServerError, "internal API key not configured")
			c.Abort()
			return
		}

		provided := c.GetHeader(InternalAPIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid internal API key")
			c.Abort()
			return
		}

		c.Next()
	}
}
