package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector

	// OTel meters and instruments
	meter             metric.Meter
	queueGauge        metric.Int64ObservableGauge
	pendingAgeGauge   metric.Float64ObservableGauge
	breakerStateGauge metric.Int64ObservableGauge
	breakerCountGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	// Create meter provider
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	// Create meter with service info
	meter := meterProvider.Meter(
		"webhook-pipeline",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		meter:         meter,
	}

	// Register metrics instruments
	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	// Retry queue composition gauge (per status)
	oe.queueGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.retry.entries",
		metric.WithDescription("Number of retry entries by status"),
		metric.WithUnit("{entries}"),
		metric.WithInt64Callback(oe.observeQueue),
	)
	if err != nil {
		return fmt.Errorf("creating queue gauge: %w", err)
	}

	// Oldest pending entry age, the lag indicator for SLA alerting
	oe.pendingAgeGauge, err = oe.meter.Float64ObservableGauge(
		"webhook.retry.oldest_pending_age",
		metric.WithDescription("Age of the oldest pending retry entry"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(oe.observePendingAge),
	)
	if err != nil {
		return fmt.Errorf("creating pending age gauge: %w", err)
	}

	// Breaker state gauge (1 for the active state, 0 otherwise)
	oe.breakerStateGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.breaker.state",
		metric.WithDescription("Circuit breaker state, 1 for the active state"),
		metric.WithInt64Callback(oe.observeBreakerState),
	)
	if err != nil {
		return fmt.Errorf("creating breaker state gauge: %w", err)
	}

	// Breaker window counters
	oe.breakerCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.breaker.counts",
		metric.WithDescription("Circuit breaker failure and success counters"),
		metric.WithUnit("{calls}"),
		metric.WithInt64Callback(oe.observeBreakerCounts),
	)
	if err != nil {
		return fmt.Errorf("creating breaker count gauge: %w", err)
	}

	return nil
}

// observeQueue is a callback that reports retry entry counts by status
func (oe *OTelExporter) observeQueue(ctx context.Context, observer metric.Int64Observer) error {
	stats, err := oe.collector.GetQueueStats(ctx)
	if err != nil {
		return err
	}

	counts := map[string]int64{
		"pending":     stats.Pending,
		"processing":  stats.Processing,
		"completed":   stats.Completed,
		"dead_letter": stats.DeadLetter,
	}
	for status, count := range counts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("entry.status", status),
		))
	}

	return nil
}

// observePendingAge is a callback that reports the oldest pending entry age
func (oe *OTelExporter) observePendingAge(ctx context.Context, observer metric.Float64Observer) error {
	stats, err := oe.collector.GetQueueStats(ctx)
	if err != nil {
		return err
	}

	if stats.OldestPending == nil {
		observer.Observe(0)
		return nil
	}
	observer.Observe(time.Since(*stats.OldestPending).Seconds())
	return nil
}

// observeBreakerState is a callback that reports the breaker state
func (oe *OTelExporter) observeBreakerState(ctx context.Context, observer metric.Int64Observer) error {
	snapshot, err := oe.collector.GetBreakerSnapshot(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}

	for _, state := range []string{"closed", "open", "half_open"} {
		var value int64
		if snapshot.Status.String() == state {
			value = 1
		}
		observer.Observe(value, metric.WithAttributes(
			attribute.String("breaker.state", state),
		))
	}

	return nil
}

// observeBreakerCounts is a callback that reports breaker window counters
func (oe *OTelExporter) observeBreakerCounts(ctx context.Context, observer metric.Int64Observer) error {
	snapshot, err := oe.collector.GetBreakerSnapshot(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}

	observer.Observe(int64(snapshot.Failures), metric.WithAttributes(
		attribute.String("breaker.counter", "failures"),
	))
	observer.Observe(int64(snapshot.Successes), metric.WithAttributes(
		attribute.String("breaker.counter", "successes"),
	))

	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
