package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/risk-engine/pkg/common"
	"github.com/richxcame/risk-engine/pkg/logger"
	"go.uber.org/zap"
)

// RequestTimeout attaches a deadline to the request context. Handlers are
// expected to honour it; if the deadline passed and nothing was written,
// the request is answered with 504.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.Header("X-Timeout", "true")
			common.ErrorResponse(c, http.StatusGatewayTimeout, "Request timeout")
			c.Abort()

			logger.WithContext(ctx).Warn("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Duration("timeout", timeout),
			)
		}
	}
}
