package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// WorkloadsKey lists the workload ids an instance competes for.
const WorkloadsKey = attribute.Key("leasekeeper.workloads")

// TracerConfig describes the instance whose spans are exported.
type TracerConfig struct {
	ServiceName   string
	CollectorAddr string   // OTLP gRPC endpoint; empty disables tracing
	Owner         string   // lease owner token, exported as service.instance.id
	Workloads     []string // supervised workload ids
}

// InitTracer initializes the global trace provider.
// It returns a shutdown function that should be called on app exit.
// An empty collector address leaves the global no-op provider in place.
func InitTracer(ctx context.Context, cfg TracerConfig) (func(context.Context) error, error) {
	if cfg.CollectorAddr == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(cfg.CollectorAddr),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)

	return tp.Shutdown, nil
}

// NewResource builds the resource attached to every span: the service, the
// host, the owner token and the workloads this instance competes for.
func NewResource(ctx context.Context, cfg TracerConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Owner != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.Owner))
	}
	if len(cfg.Workloads) > 0 {
		attrs = append(attrs, WorkloadsKey.StringSlice(cfg.Workloads))
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
