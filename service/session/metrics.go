package session

import (
	"context"

	"PPresence/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "PPresence/service/session"

// deliveryMetrics 走全局 MeterProvider，进程没有安装 exporter 时就是 noop
type deliveryMetrics struct {
	attrs     metric.MeasurementOption
	delivered metric.Int64Counter
	failed    metric.Int64Counter
	conns     metric.Int64UpDownCounter
}

func newDeliveryMetrics(topic Topic) *deliveryMetrics {
	meter := otel.Meter(meterName)
	m := &deliveryMetrics{
		attrs: metric.WithAttributes(attribute.String("topic", topic.String())),
	}

	var err error
	if m.delivered, err = meter.Int64Counter("session.deliveries",
		metric.WithDescription("payloads written to live connections"),
		metric.WithUnit("{message}")); err != nil {
		logger.Warn("[Metrics] create counter failed", zap.String("name", "session.deliveries"), zap.Error(err))
	}
	if m.failed, err = meter.Int64Counter("session.delivery_failures",
		metric.WithDescription("writes that failed and got the connection pruned"),
		metric.WithUnit("{message}")); err != nil {
		logger.Warn("[Metrics] create counter failed", zap.String("name", "session.delivery_failures"), zap.Error(err))
	}
	if m.conns, err = meter.Int64UpDownCounter("session.connections",
		metric.WithDescription("registered connections"),
		metric.WithUnit("{connection}")); err != nil {
		logger.Warn("[Metrics] create counter failed", zap.String("name", "session.connections"), zap.Error(err))
	}
	return m
}

func (m *deliveryMetrics) record(sent, failed int) {
	ctx := context.Background()
	if sent > 0 && m.delivered != nil {
		m.delivered.Add(ctx, int64(sent), m.attrs)
	}
	if failed > 0 && m.failed != nil {
		m.failed.Add(ctx, int64(failed), m.attrs)
	}
}

func (m *deliveryMetrics) connDelta(d int64) {
	if m.conns != nil {
		m.conns.Add(context.Background(), d, m.attrs)
	}
}
