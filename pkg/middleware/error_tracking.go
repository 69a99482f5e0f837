package middleware

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/risk-engine/pkg/errors"
)

// SentryMiddleware attaches a Sentry hub to every request and reports panics.
// Repanic hands the panic on to gin's recovery so the client still gets a 500.
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// ErrorHandler reports unexpected handler errors and bare 5xx responses to Sentry.
// Place it after SentryMiddleware.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		duration := time.Since(start)

		for _, err := range c.Errors {
			if errors.ShouldReportError(err.Err, statusCode) {
				captureError(c, err.Err, statusCode, duration)
			}
		}

		if statusCode >= 500 && len(c.Errors) == 0 {
			captureHTTPError(c, statusCode)
		}
	}
}

func hubFor(c *gin.Context) *sentry.Hub {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		return hub
	}
	return sentry.CurrentHub().Clone()
}

func captureError(c *gin.Context, err error, statusCode int, duration time.Duration) {
	hub := hubFor(c)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(getSentryLevel(statusCode))
		scope.SetTag("http.method", c.Request.Method)
		scope.SetTag("http.status_code", fmt.Sprintf("%d", statusCode))
		scope.SetTag("endpoint", c.FullPath())
		if correlationID := GetCorrelationID(c); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		scope.SetContext("http", map[string]interface{}{
			"method":      c.Request.Method,
			"route":       c.FullPath(),
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
		})
		hub.CaptureException(err)
	})
}

func captureHTTPError(c *gin.Context, statusCode int) {
	hub := hubFor(c)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(getSentryLevel(statusCode))
		scope.SetTag("http.method", c.Request.Method)
		scope.SetTag("http.status_code", fmt.Sprintf("%d", statusCode))
		scope.SetTag("endpoint", c.FullPath())
		hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s %s", statusCode, c.Request.Method, c.FullPath()))
	})
}

func getSentryLevel(statusCode int) sentry.Level {
	switch {
	case statusCode >= 500:
		return sentry.LevelError
	case statusCode == 429:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
