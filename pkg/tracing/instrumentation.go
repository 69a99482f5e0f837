package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Database span attributes
const (
	DBSystemKey    = attribute.Key("db.system")
	DBOperationKey = attribute.Key("db.operation")
	DBTableKey     = attribute.Key("db.sql.table")
)

// HTTP span attributes
const (
	HTTPMethodKey    = attribute.Key("http.method")
	HTTPURLKey       = attribute.Key("http.url")
	HTTPStatusKey    = attribute.Key("http.status_code")
	HTTPRouteKey     = attribute.Key("http.route")
	HTTPClientIPKey  = attribute.Key("http.client_ip")
	HTTPUserAgentKey = attribute.Key("http.user_agent")
	HTTPRequestIDKey = attribute.Key("http.request_id")
)

// Risk span attributes
const (
	UserIDKey         = attribute.Key("user.id")
	AssessmentTypeKey = attribute.Key("risk.assessment_type")
	RiskScoreKey      = attribute.Key("risk.score")
	RiskLevelKey      = attribute.Key("risk.level")
	RiskActionKey     = attribute.Key("risk.action")
	FailSafeKey       = attribute.Key("risk.fail_safe")
	SignalSourceKey   = attribute.Key("risk.signal_source")
)

// TraceDBQuery wraps a database query with tracing
func TraceDBQuery(ctx context.Context, tracerName, operation, table string, fn func(ctx context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, fmt.Sprintf("db.%s", operation),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(
		DBSystemKey.String("postgresql"),
		DBOperationKey.String(operation),
		DBTableKey.String(table),
	)

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// TraceSignalFetch wraps one upstream signal read with a client span
func TraceSignalFetch(ctx context.Context, tracerName, source string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, "signal."+source,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(SignalSourceKey.String(source)),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// AssessmentAttributes returns the span attributes describing a decision
func AssessmentAttributes(score int, level, action string, failSafe bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		RiskScoreKey.Int(score),
		RiskLevelKey.String(level),
		RiskActionKey.String(action),
		FailSafeKey.Bool(failSafe),
	}
}
