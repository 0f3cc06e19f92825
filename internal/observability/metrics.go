package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for hitlbot
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	gatherer promclient.Gatherer

	// Agent metrics
	agentRuns        metric.Int64Counter
	agentRunDuration metric.Float64Histogram

	// Delivery metrics
	streamFragments  metric.Int64Counter
	streamReconciles metric.Int64Counter

	// Surface metrics
	interactions metric.Int64Counter
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Registry overrides the default Prometheus registry. Tests use a fresh
	// registry so collectors can be created more than once per process.
	Registry *promclient.Registry `yaml:"-" mapstructure:"-"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	var registerer promclient.Registerer = promclient.DefaultRegisterer
	var gatherer promclient.Gatherer = promclient.DefaultGatherer
	if config.Registry != nil {
		registerer = config.Registry
		gatherer = config.Registry
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("hitlbot")

	agentRuns, err := meter.Int64Counter(
		"hitlbot.agent.runs.total",
		metric.WithDescription("Total number of agent runs and resumes by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_runs counter: %w", err)
	}

	agentRunDuration, err := meter.Float64Histogram(
		"hitlbot.agent.run.duration",
		metric.WithDescription("Time to drain an agent output sequence in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_run_duration histogram: %w", err)
	}

	streamFragments, err := meter.Int64Counter(
		"hitlbot.delivery.fragments.total",
		metric.WithDescription("Fragments appended to open delivery sessions"),
		metric.WithUnit("{fragment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream_fragments counter: %w", err)
	}

	streamReconciles, err := meter.Int64Counter(
		"hitlbot.delivery.reconciles.total",
		metric.WithDescription("Delivery session closes by reconciliation mode"),
		metric.WithUnit("{close}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream_reconciles counter: %w", err)
	}

	interactions, err := meter.Int64Counter(
		"hitlbot.surface.interactions.total",
		metric.WithDescription("Inbound chat surface events by kind and status"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create interactions counter: %w", err)
	}

	return &MetricsCollector{
		meter:            meter,
		provider:         provider,
		gatherer:         gatherer,
		agentRuns:        agentRuns,
		agentRunDuration: agentRunDuration,
		streamFragments:  streamFragments,
		streamReconciles: streamReconciles,
		interactions:     interactions,
	}, nil
}

// Handler returns the Prometheus scrape handler, or nil when metrics are disabled.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return nil
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordAgentRun records one adapter call. mode is run, approve or decline;
// outcome is the result kind.
func (m *MetricsCollector) RecordAgentRun(ctx context.Context, mode, outcome string, duration time.Duration) {
	if m == nil || m.agentRuns == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	}
	m.agentRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.agentRunDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordStreamFragment records a fragment appended to a delivery session
func (m *MetricsCollector) RecordStreamFragment(ctx context.Context) {
	if m == nil || m.streamFragments == nil {
		return
	}
	m.streamFragments.Add(ctx, 1)
}

// RecordStreamReconcile records how a delivery session was closed: none, suffix, full or aborted.
func (m *MetricsCollector) RecordStreamReconcile(ctx context.Context, mode string) {
	if m == nil || m.streamReconciles == nil {
		return
	}
	m.streamReconciles.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordInteraction records an inbound surface event
func (m *MetricsCollector) RecordInteraction(ctx context.Context, kind, status string) {
	if m == nil || m.interactions == nil {
		return
	}
	m.interactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}
