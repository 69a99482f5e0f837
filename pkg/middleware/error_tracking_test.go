package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGetSentryLevel(t *testing.T) {
	assert.Equal(t, sentry.LevelError, getSentryLevel(http.StatusInternalServerError))
	assert.Equal(t, sentry.LevelWarning, getSentryLevel(http.StatusTooManyRequests))
	assert.Equal(t, sentry.LevelInfo, getSentryLevel(http.StatusBadRequest))
}

func TestErrorHandlerWithoutSentryClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationID(), SentryMiddleware(), ErrorHandler(), Metrics("test"))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("database unavailable"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
