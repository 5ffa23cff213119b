package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const collectorDialTimeout = 2 * time.Second

// TracerOptions describes the OTLP/HTTP collector and how this process
// identifies itself to it.
type TracerOptions struct {
	ServiceName string
	Environment string
	Version     string
	Endpoint    string
}

// InitTracer installs a global batching tracer provider. The collector is
// dialed once up front so a typo in the endpoint surfaces at startup instead
// of as silently dropped batches.
func InitTracer(opts TracerOptions) (*sdktrace.TracerProvider, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("tracing endpoint is empty")
	}

	conn, err := net.DialTimeout("tcp", opts.Endpoint, collectorDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("collector at %s is not reachable: %w", opts.Endpoint, err)
	}
	conn.Close()

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(tracerResource(opts)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

func tracerResource(opts TracerOptions) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(opts.ServiceName),
		semconv.ServiceVersionKey.String(opts.Version),
		semconv.DeploymentEnvironmentKey.String(opts.Environment),
	)
}
