package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics holds custom metrics for the generated table endpoints
type APIMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	rowsReturned    metric.Int64Histogram
}

// InitAPIMetrics initializes endpoint-level metrics
func InitAPIMetrics() (*APIMetrics, error) {
	meter := otel.Meter("sql-autoapi")

	requestDuration, err := meter.Float64Histogram(
		"autoapi.request.duration",
		metric.WithDescription("Duration of table endpoint requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"autoapi.requests.total",
		metric.WithDescription("Total number of table endpoint requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"autoapi.errors.total",
		metric.WithDescription("Total number of table endpoint errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"autoapi.requests.active",
		metric.WithDescription("Number of in-flight table endpoint requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	rowsReturned, err := meter.Int64Histogram(
		"autoapi.rows.returned",
		metric.WithDescription("Number of rows returned per request"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows returned histogram: %w", err)
	}

	return &APIMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		rowsReturned:    rowsReturned,
	}, nil
}

// RecordRequest records a table endpoint request with its duration and outcome
func (m *APIMetrics) RecordRequest(ctx context.Context, route string, status int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("route", route),
		attribute.Int("status", status),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if status >= 500 {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("route", route),
		))
	}
}

// RecordRowsReturned records the number of rows a request returned
func (m *APIMetrics) RecordRowsReturned(ctx context.Context, route string, count int64) {
	m.rowsReturned.Record(ctx, count, metric.WithAttributes(
		attribute.String("route", route),
	))
}

// RequestStarted increments the in-flight request gauge
func (m *APIMetrics) RequestStarted(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// RequestFinished decrements the in-flight request gauge
func (m *APIMetrics) RequestFinished(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// DiscoveryMetrics holds metrics for the startup introspection pass
type DiscoveryMetrics struct {
	duration           metric.Float64Histogram
	endpointsGenerated metric.Int64Counter
	tablesSkipped      metric.Int64Counter
	routeCollisions    metric.Int64Counter
}

// InitDiscoveryMetrics initializes discovery metrics
func InitDiscoveryMetrics() (*DiscoveryMetrics, error) {
	meter := otel.Meter("sql-autoapi")

	duration, err := meter.Float64Histogram(
		"autoapi.discovery.duration",
		metric.WithDescription("Duration of the startup discovery pass in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery duration histogram: %w", err)
	}

	endpointsGenerated, err := meter.Int64Counter(
		"autoapi.discovery.endpoints",
		metric.WithDescription("Number of endpoints generated during discovery"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create endpoints counter: %w", err)
	}

	tablesSkipped, err := meter.Int64Counter(
		"autoapi.discovery.tables_skipped",
		metric.WithDescription("Number of tables skipped during discovery"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tables skipped counter: %w", err)
	}

	routeCollisions, err := meter.Int64Counter(
		"autoapi.discovery.route_collisions",
		metric.WithDescription("Number of route collisions resolved during discovery"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create route collisions counter: %w", err)
	}

	return &DiscoveryMetrics{
		duration:           duration,
		endpointsGenerated: endpointsGenerated,
		tablesSkipped:      tablesSkipped,
		routeCollisions:    routeCollisions,
	}, nil
}

// RecordDiscovery records the outcome of a discovery pass
func (m *DiscoveryMetrics) RecordDiscovery(ctx context.Context, duration time.Duration, endpoints, skipped, collisions int64) {
	m.duration.Record(ctx, float64(duration.Milliseconds()))
	m.endpointsGenerated.Add(ctx, endpoints)
	m.tablesSkipped.Add(ctx, skipped)
	m.routeCollisions.Add(ctx, collisions)
}
