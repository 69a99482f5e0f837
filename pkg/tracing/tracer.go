package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultCollector = "localhost:4317"

// Config controls OTLP export for a single service.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	// SampleRate in (0,1]; zero picks a per-environment default.
	SampleRate float64
	Enabled    bool
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_TRACE_SAMPLE_RATE.
func ConfigFromEnv(serviceName, serviceVersion, environment string) Config {
	cfg := Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    environment,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	cfg.Enabled, _ = strconv.ParseBool(os.Getenv("OTEL_ENABLED"))
	if raw := os.Getenv("OTEL_TRACE_SAMPLE_RATE"); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.SampleRate = rate
		}
	}
	return cfg
}

// InitTracer installs a batching OTLP/gRPC tracer provider as the global
// provider. It returns nil when tracing is disabled; callers own Shutdown.
func InitTracer(cfg Config, logger *zap.Logger) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return nil, nil
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = defaultCollector
	}
	rate := sampleRate(cfg)

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		attribute.String("host.name", host),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial collector %s: %w", endpoint, err)
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(otlptracegrpc.WithGRPCConn(conn)))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	ratio := sdktrace.TraceIDRatioBased(rate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		// Honour an upstream sampling decision, otherwise fall back to the ratio.
		sdktrace.WithSampler(sdktrace.ParentBased(ratio,
			sdktrace.WithRemoteParentSampled(sdktrace.AlwaysSample()),
			sdktrace.WithRemoteParentNotSampled(ratio),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", endpoint),
		zap.Float64("sample_rate", rate),
	)
	return tp, nil
}

func sampleRate(cfg Config) float64 {
	if cfg.SampleRate > 0 {
		if cfg.SampleRate > 1 {
			return 1
		}
		return cfg.SampleRate
	}
	switch cfg.Environment {
	case "production", "prod":
		return 0.1
	case "staging", "stage":
		return 0.5
	default:
		return 1
	}
}

// StartSpan starts a span on the named tracer from the global provider.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// AddSpanAttributes annotates the span in ctx if it is recording.
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError attaches err as a span event if the span in ctx is recording.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attrs...))
	}
}
