package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/logger"
)

const (
	CorrelationIDHeader = "X-Request-ID"
	// CorrelationIDKey is the gin context key holding the request's ID.
	CorrelationIDKey = "correlation_id"
)

// CorrelationID adopts the caller's X-Request-ID when it is a UUID and mints
// one otherwise. The ID is echoed back and stored on both the gin and the
// request context.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := incomingCorrelationID(c.GetHeader(CorrelationIDHeader))

		c.Set(CorrelationIDKey, id)
		c.Request = c.Request.WithContext(logger.ContextWithCorrelationID(c.Request.Context(), id))
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

func incomingCorrelationID(raw string) string {
	if parsed, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
		return parsed.String()
	}
	return uuid.NewString()
}

func GetCorrelationID(c *gin.Context) string {
	if id := c.GetString(CorrelationIDKey); id != "" {
		return id
	}
	return logger.CorrelationIDFromContext(c.Request.Context())
}
