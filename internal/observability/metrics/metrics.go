package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	syncRuns      metric.Int64Counter
	syncDocuments metric.Int64Counter
	stageErrors   metric.Int64Counter
	syncDuration  metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "metricdock"
	}
	meter := provider.Meter(name)

	syncRuns, err := meter.Int64Counter("metricdock_sync_runs_total")
	if err != nil {
		return nil, err
	}
	syncDocuments, err := meter.Int64Counter("metricdock_sync_documents_total")
	if err != nil {
		return nil, err
	}
	stageErrors, err := meter.Int64Counter("metricdock_sync_stage_errors_total")
	if err != nil {
		return nil, err
	}
	syncDuration, err := meter.Float64Histogram("metricdock_sync_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		syncRuns:      syncRuns,
		syncDocuments: syncDocuments,
		stageErrors:   stageErrors,
		syncDuration:  syncDuration,
	}, nil
}

// RecordSyncRun increments sync run counts by outcome.
func (m *Metrics) RecordSyncRun(ctx context.Context, provider, syncType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("sync_type", strings.TrimSpace(syncType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.syncRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncDocuments increments synced document counts per entity.
func (m *Metrics) RecordSyncDocuments(ctx context.Context, provider, entity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("entity", strings.TrimSpace(entity)),
	)
	m.syncDocuments.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordStageError increments per-entity stage failure counts.
func (m *Metrics) RecordStageError(ctx context.Context, provider, entity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("entity", strings.TrimSpace(entity)),
	)
	m.stageErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncDuration records the wall-clock duration of a sync run.
func (m *Metrics) RecordSyncDuration(ctx context.Context, provider, syncType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("sync_type", strings.TrimSpace(syncType)),
	)
	m.syncDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":      {},
	"provider":    {},
	"entity":      {},
	"sync_type":   {},
	"outcome":     {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
