package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/richxcame/risk-engine/pkg/common"
	"github.com/richxcame/risk-engine/pkg/logger"
)

// Headers stripped from every event before it leaves the process.
var scrubbedHeaders = []string{"X-Api-Key", "X-Internal-Api-Key", "Authorization", "Cookie"}

// SentryConfig mirrors the subset of sentry.ClientOptions the service exposes.
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	ServerName       string
	SampleRate       float64
	TracesSampleRate float64
	Debug            bool
	EnableTracing    bool
}

// DefaultSentryConfig reads SENTRY_* variables. Traces are sampled at 10%
// in production and fully elsewhere unless overridden.
func DefaultSentryConfig() *SentryConfig {
	env := firstNonEmpty(os.Getenv("ENVIRONMENT"), os.Getenv("SENTRY_ENVIRONMENT"), "development")
	tracesDefault := 1.0
	if env == "production" {
		tracesDefault = 0.1
	}
	return &SentryConfig{
		DSN:              os.Getenv("SENTRY_DSN"),
		Environment:      env,
		Release:          os.Getenv("SENTRY_RELEASE"),
		ServerName:       os.Getenv("SERVICE_NAME"),
		SampleRate:       envRate("SENTRY_SAMPLE_RATE", 1.0),
		TracesSampleRate: envRate("SENTRY_TRACES_SAMPLE_RATE", tracesDefault),
		Debug:            os.Getenv("SENTRY_DEBUG") == "true",
		EnableTracing:    os.Getenv("SENTRY_ENABLE_TRACING") != "false",
	}
}

func (c *SentryConfig) Enabled() bool {
	return c != nil && c.DSN != ""
}

// InitSentry installs the global Sentry client. It fails when no DSN is set.
func InitSentry(cfg *SentryConfig) error {
	if !cfg.Enabled() {
		return stderrors.New("sentry DSN is not configured")
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		EnableTracing:    cfg.EnableTracing,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	}); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	return nil
}

// scrubEvent drops info/debug events and strips request bodies, which carry
// device fingerprints and coordinates.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Level == sentry.LevelInfo || event.Level == sentry.LevelDebug {
		return nil
	}
	if event.Request != nil {
		event.Request.Data = ""
		for _, h := range scrubbedHeaders {
			delete(event.Request.Headers, h)
		}
	}
	return event
}

func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// CaptureErrorWithContext reports err on the request hub if there is one,
// tagging the correlation ID and attaching extras.
func CaptureErrorWithContext(ctx context.Context, err error, extras map[string]interface{}) *sentry.EventID {
	if err == nil {
		return nil
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	var id *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetExtras(extras)
		if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
			scope.SetTag("correlation_id", cid)
		}
		id = hub.CaptureException(err)
	})
	return id
}

// CapturePanic reports a recovered panic value.
func CapturePanic(ctx context.Context, recovered interface{}, extras map[string]interface{}) *sentry.EventID {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", recovered)
	}
	return CaptureErrorWithContext(ctx, err, extras)
}

// IsBusinessError reports errors that describe a rejected request rather
// than a fault: client-class AppErrors and the common sentinels.
func IsBusinessError(err error) bool {
	if err == nil {
		return false
	}
	var appErr *common.AppError
	if stderrors.As(err, &appErr) && appErr.Code < http.StatusInternalServerError {
		return true
	}
	return stderrors.Is(err, common.ErrNotFound) ||
		stderrors.Is(err, common.ErrValidation) ||
		stderrors.Is(err, common.ErrBadRequest)
}

// ShouldReportError keeps business errors and 4xx other than 429 out of Sentry.
func ShouldReportError(err error, statusCode int) bool {
	if err == nil || IsBusinessError(err) {
		return false
	}
	if statusCode >= 400 && statusCode < 500 {
		return statusCode == http.StatusTooManyRequests
	}
	return true
}

func envRate(key string, fallback float64) float64 {
	rate, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || rate < 0 || rate > 1 {
		return fallback
	}
	return rate
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
