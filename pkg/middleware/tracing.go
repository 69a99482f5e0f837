package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/risk-engine/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware creates a middleware for OpenTelemetry tracing
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)

	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		spanName := c.Request.Method + " " + c.FullPath()
		if c.FullPath() == "" {
			spanName = c.Request.Method + " " + c.Request.URL.Path
		}

		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				tracing.HTTPMethodKey.String(c.Request.Method),
				tracing.HTTPURLKey.String(c.Request.URL.Path),
				tracing.HTTPRouteKey.String(c.FullPath()),
				tracing.HTTPUserAgentKey.String(c.Request.UserAgent()),
				tracing.HTTPClientIPKey.String(c.ClientIP()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		if span.SpanContext().HasTraceID() {
			c.Header("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		if requestID := c.GetString(CorrelationIDKey); requestID != "" {
			span.SetAttributes(tracing.HTTPRequestIDKey.String(requestID))
		}

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(tracing.HTTPStatusKey.Int(status))

		switch {
		case len(c.Errors) > 0:
			span.SetStatus(codes.Error, c.Errors.String())
			for _, err := range c.Errors {
				span.RecordError(err.Err)
			}
		case status >= 500:
			span.SetStatus(codes.Error, "Internal Server Error")
		case status >= 400:
			span.SetStatus(codes.Error, "Client Error")
		default:
			span.SetStatus(codes.Ok, "")
		}
	}
}
