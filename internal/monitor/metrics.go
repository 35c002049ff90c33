package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quantrail/sentinel/internal/schema"
)

type monitorMetrics struct {
	framesReceived  metric.Int64Counter
	framesMalformed metric.Int64Counter
	reconnects      metric.Int64Counter
	notifications   metric.Int64Counter
	fillsBuffered   metric.Int64Counter
	pnlMisses       metric.Int64Counter
}

func newMonitorMetrics() *monitorMetrics {
	meter := otel.Meter("sentinel.monitor")

	mm := &monitorMetrics{}

	mm.framesReceived, _ = meter.Int64Counter("sentinel_monitor_frames_received",
		metric.WithDescription("Private-feed data frames received, by topic"),
		metric.WithUnit("{frame}"))

	mm.framesMalformed, _ = meter.Int64Counter("sentinel_monitor_frames_malformed",
		metric.WithDescription("Frames dropped because they could not be parsed"),
		metric.WithUnit("{frame}"))

	mm.reconnects, _ = meter.Int64Counter("sentinel_monitor_reconnects",
		metric.WithDescription("WebSocket session attempts, by result"),
		metric.WithUnit("{attempt}"))

	mm.notifications, _ = meter.Int64Counter("sentinel_monitor_notifications",
		metric.WithDescription("Notifications handed to the sink, by kind"),
		metric.WithUnit("{notification}"))

	mm.fillsBuffered, _ = meter.Int64Counter("sentinel_monitor_fills_buffered",
		metric.WithDescription("Execution events merged into settle-window buffers"),
		metric.WithUnit("{fill}"))

	mm.pnlMisses, _ = meter.Int64Counter("sentinel_monitor_pnl_misses",
		metric.WithDescription("Closed-PnL correlations exhausted without a match"),
		metric.WithUnit("{lookup}"))

	return mm
}

func (mm *monitorMetrics) recordFrame(ctx context.Context, topic schema.Topic) {
	if mm == nil || mm.framesReceived == nil {
		return
	}
	mm.framesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", string(topic))))
}

func (mm *monitorMetrics) recordMalformed(ctx context.Context) {
	if mm == nil || mm.framesMalformed == nil {
		return
	}
	mm.framesMalformed.Add(ctx, 1)
}

func (mm *monitorMetrics) recordReconnect(ctx context.Context, result string) {
	if mm == nil || mm.reconnects == nil {
		return
	}
	mm.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (mm *monitorMetrics) recordNotification(ctx context.Context, kind schema.NotificationKind) {
	if mm == nil || mm.notifications == nil {
		return
	}
	mm.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

func (mm *monitorMetrics) recordFillBuffered(ctx context.Context) {
	if mm == nil || mm.fillsBuffered == nil {
		return
	}
	mm.fillsBuffered.Add(ctx, 1)
}

func (mm *monitorMetrics) recordPnlMiss(ctx context.Context) {
	if mm == nil || mm.pnlMisses == nil {
		return
	}
	mm.pnlMisses.Add(ctx, 1)
}
