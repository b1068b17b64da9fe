// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope of all leasekeeper instruments.
const MeterName = "leasekeeper"

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
// Each call exports through its own registry, together with the Go runtime
// and process collectors.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), provider.Shutdown, nil
}

// Metrics holds the supervisor's instruments.
type Metrics struct {
	ticks             otelmetric.Int64Counter
	tickErrors        otelmetric.Int64Counter
	leaseAcquired     otelmetric.Int64Counter
	leaseLost         otelmetric.Int64Counter
	inconsistentStops otelmetric.Int64Counter
	leasesHeld        otelmetric.Int64Gauge
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.ticks, err = meter.Int64Counter("leasekeeper_ticks_total",
		otelmetric.WithDescription("Completed supervisor ticks.")); err != nil {
		return nil, fmt.Errorf("failed to create ticks counter: %w", err)
	}
	if m.tickErrors, err = meter.Int64Counter("leasekeeper_tick_errors_total",
		otelmetric.WithDescription("Ticks that ended in a cooldown.")); err != nil {
		return nil, fmt.Errorf("failed to create tick errors counter: %w", err)
	}
	if m.leaseAcquired, err = meter.Int64Counter("leasekeeper_lease_acquired_total",
		otelmetric.WithDescription("Leases acquired by this instance.")); err != nil {
		return nil, fmt.Errorf("failed to create lease acquired counter: %w", err)
	}
	if m.leaseLost, err = meter.Int64Counter("leasekeeper_lease_lost_total",
		otelmetric.WithDescription("Held leases that failed to renew.")); err != nil {
		return nil, fmt.Errorf("failed to create lease lost counter: %w", err)
	}
	if m.inconsistentStops, err = meter.Int64Counter("leasekeeper_inconsistent_stops_total",
		otelmetric.WithDescription("Workloads stopped because they ran without the lease.")); err != nil {
		return nil, fmt.Errorf("failed to create inconsistent stops counter: %w", err)
	}
	if m.leasesHeld, err = meter.Int64Gauge("leasekeeper_leases_held",
		otelmetric.WithDescription("1 while this instance believes it holds the workload's lease.")); err != nil {
		return nil, fmt.Errorf("failed to create leases held gauge: %w", err)
	}

	return &m, nil
}

// NewNoopMetrics returns Metrics that record nothing.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(MeterName))
	return m
}

func workloadAttr(id string) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(attribute.String("workload", id))
}

func (m *Metrics) Tick(ctx context.Context) {
	m.ticks.Add(ctx, 1)
}

func (m *Metrics) TickError(ctx context.Context) {
	m.tickErrors.Add(ctx, 1)
}

func (m *Metrics) LeaseAcquired(ctx context.Context, workload string) {
	m.leaseAcquired.Add(ctx, 1, workloadAttr(workload))
}

func (m *Metrics) LeaseLost(ctx context.Context, workload string) {
	m.leaseLost.Add(ctx, 1, workloadAttr(workload))
}

func (m *Metrics) InconsistentStop(ctx context.Context, workload string) {
	m.inconsistentStops.Add(ctx, 1, workloadAttr(workload))
}

// LeaseHeld records the current belief for workload.
func (m *Metrics) LeaseHeld(ctx context.Context, workload string, held bool) {
	var v int64
	if held {
		v = 1
	}
	m.leasesHeld.Record(ctx, v, workloadAttr(workload))
}
