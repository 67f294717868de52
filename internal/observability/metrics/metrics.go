package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
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

const topicOther = "other"

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
	deliveries metric.Int64Counter
	upserts    metric.Int64Counter
	lineItems  metric.Int64Counter
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
		name = "orderlead"
	}
	meter := provider.Meter(name)

	deliveries, err := meter.Int64Counter("orderlead_webhook_deliveries_total")
	if err != nil {
		return nil, err
	}
	upserts, err := meter.Int64Counter("orderlead_lead_upserts_total")
	if err != nil {
		return nil, err
	}
	lineItems, err := meter.Int64Counter("orderlead_line_items_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		deliveries: deliveries,
		upserts:    upserts,
		lineItems:  lineItems,
	}, nil
}

// RecordDelivery increments webhook delivery counts.
func (m *Metrics) RecordDelivery(ctx context.Context, topic, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("topic", TopicLabel(topic)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUpsert increments lead upsert counts.
func (m *Metrics) RecordUpsert(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.upserts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLineItem counts a classified line item. The collection name is
// slugged so the label stays stable if display names change case or spacing.
func (m *Metrics) RecordLineItem(ctx context.Context, collection string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("collection", CollectionLabel(collection)))
	m.lineItems.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// TopicLabel bounds the topic label. The header is sender-controlled, so any
// topic the service does not handle is counted as "other".
func TopicLabel(topic string) string {
	if strings.TrimSpace(topic) == domain.TopicOrderCreate {
		return domain.TopicOrderCreate
	}
	return topicOther
}

// CollectionLabel converts a collection display name into a metric label.
func CollectionLabel(collection string) string {
	label := slug.Make(strings.TrimSpace(collection))
	if label == "" {
		return "unknown"
	}
	return strings.ReplaceAll(label, "-", "_")
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
	"topic":       {},
	"outcome":     {},
	"action":      {},
	"collection":  {},
	"method":      {},
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
