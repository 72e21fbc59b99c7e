// Package observability wires OpenTelemetry tracing for the chat
// client. Spans cover the lifetime of a message from submission to the
// correlated reply.
package observability

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is the service name attached to exported traces.
const DefaultServiceName = "chatlink"

var (
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
)

// Config holds tracing configuration.
type Config struct {
	// ServiceName is the name of the service (defaults to "chatlink").
	ServiceName string

	// Enabled controls whether tracing is enabled.
	Enabled bool

	// ExporterType specifies the exporter: "otlp", "stdout", or "none".
	ExporterType string

	// OTLPEndpoint is the OTLP endpoint URL.
	OTLPEndpoint string

	// OTLPHeaders are additional headers for OTLP requests.
	OTLPHeaders map[string]string
}

// InitFromEnv initializes tracing from standard OpenTelemetry
// environment variables:
//   - OTEL_SERVICE_NAME: service name (default: "chatlink")
//   - OTEL_TRACES_EXPORTER: "otlp", "stdout", or "none" (default: "stdout")
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint
//   - OTEL_EXPORTER_OTLP_HEADERS: headers as "key1=value1,key2=value2"
func InitFromEnv() error {
	config := Config{
		ServiceName:  getEnv("OTEL_SERVICE_NAME", DefaultServiceName),
		Enabled:      getEnv("OTEL_TRACES_ENABLED", "true") == "true",
		ExporterType: getEnv("OTEL_TRACES_EXPORTER", "stdout"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:  parseHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", "")),
	}
	return Init(config)
}

// Init initializes tracing with the given configuration.
func Init(config Config) error {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if !config.Enabled || config.ExporterType == "none" {
		tracer = otel.GetTracerProvider().Tracer(config.ServiceName)
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch config.ExporterType {
	case "otlp":
		exporter, err = createOTLPExporter(config)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.Printf("Tracing initialized with OTLP exporter (endpoint: %s)", config.OTLPEndpoint)

	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}

	default:
		return fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(config.ServiceName)
	return nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return tracerProvider.Shutdown(ctx)
}

// StartSpan creates a span from a parent context. Attributes come from
// the data map; non-primitive values are stringified.
func StartSpan(ctx context.Context, name string, data map[string]any) (context.Context, *Span) {
	tr := tracer
	if tr == nil {
		tr = otel.GetTracerProvider().Tracer(DefaultServiceName)
	}

	spanCtx, span := tr.Start(ctx, name)
	if data != nil {
		attrs := make([]attribute.KeyValue, 0, len(data))
		for k, v := range data {
			attrs = append(attrs, convertToAttribute(k, v))
		}
		span.SetAttributes(attrs...)
	}

	return spanCtx, &Span{ctx: spanCtx, span: span, name: name}
}

// Span wraps an OpenTelemetry span.
type Span struct {
	ctx   context.Context
	span  trace.Span
	name  string
	ended bool
}

// End finishes the span. Subsequent calls are no-ops.
func (s *Span) End() {
	if !s.ended && s.span != nil {
		s.span.End()
		s.ended = true
	}
}

// Name returns the span name.
func (s *Span) Name() string {
	return s.name
}

// IsEnded reports whether the span has been ended.
func (s *Span) IsEnded() bool {
	return s.ended
}

// Context returns the span's context.
func (s *Span) Context() context.Context {
	return s.ctx
}

// SetAttribute adds an attribute to the span.
func (s *Span) SetAttribute(key string, value any) {
	if s.span != nil {
		s.span.SetAttributes(convertToAttribute(key, value))
	}
}

// SetError records an error on the span.
func (s *Span) SetError(err error) {
	if s.span != nil && err != nil {
		s.span.RecordError(err)
	}
}

func createOTLPExporter(config Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{}
	if config.OTLPEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(config.OTLPEndpoint))
	}
	if len(config.OTLPHeaders) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.OTLPHeaders))
	}

	client := otlptracehttp.NewClient(opts...)
	return otlptrace.New(context.Background(), client)
}

func convertToAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseHeaders(headerStr string) map[string]string {
	if headerStr == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range splitList(headerStr, ',') {
		if kv := splitPair(pair, '='); len(kv) == 2 {
			headers[kv[0]] = kv[1]
		}
	}
	return headers
}

func splitList(s string, sep rune) []string {
	var result []string
	var current string
	for _, char := range s {
		if char == sep {
			if current != "" {
				result = append(result, current)
				current = ""
			}
		} else {
			current += string(char)
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}

func splitPair(s string, sep rune) []string {
	for i, char := range s {
		if char == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}
