// Package telemetry wires OpenTelemetry tracing around the Sandbox
// lifecycle (spec.md §4.I open/close/release, §4.A exec):
// an OTLP-over-gRPC trace exporter (otlptracegrpc), instrumented with the
// contrib gRPC stats handler (otelgrpc) on the exporter's own connection,
// feeding an otel/sdk/trace TracerProvider.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// tracerName is the instrumentation scope every span in this module is
// recorded under.
const tracerName = "github.com/jiandong01/firebox"

// Config controls where spans are exported. An empty Endpoint disables
// export entirely (Init returns a no-op shutdown func): telemetry is
// optional infra, never a hard dependency of the control plane.
type Config struct {
	Endpoint    string // OTLP gRPC collector address, e.g. "localhost:4317"
	ServiceName string
}

// Init builds the process-wide TracerProvider described above and installs
// it as the global provider. The returned shutdown func flushes and closes
// the exporter; callers should defer it from main.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if cfg.Endpoint == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	conn, err := grpc.NewClient(cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing OTLP collector %s: %w", cfg.Endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("merging OTel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down tracer provider: %w", err)
		}
		return conn.Close()
	}, nil
}

// StartSpan opens a span named op, tagged with the sandbox ID it concerns.
// Used by the Registry's Open/Close/Release/Reconnect and by Sandbox.Exec,
// so a slow lifecycle step or exec shows up as a span rather than only as a
// log line.
func StartSpan(ctx context.Context, op, sandboxID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, op, trace.WithAttributes(
		attribute.String("sandbox.id", sandboxID),
	))
}

// EndSpan records err (if non-nil) on span before ending it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
