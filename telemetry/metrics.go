package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	WebhookEventsReceived prometheus.Counter
	WebhookEventsIgnored  prometheus.Counter
	TasksEnqueued         prometheus.Counter
	AnnouncementsSent     prometheus.Counter
	AnnouncementsDropped  prometheus.Counter
	SubscribeAttempts     prometheus.Counter
	SubscribeFailures     prometheus.Counter

	// Gauges
	queueDepthGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		WebhookEventsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_webhook_events_received_total", Help: "Webhook callbacks carrying a stream event"})
		WebhookEventsIgnored = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_webhook_events_ignored_total", Help: "Webhook callbacks without an event field"})
		TasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_announce_tasks_enqueued_total", Help: "Notification tasks placed on the announcement queue"})
		AnnouncementsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_announcements_sent_total", Help: "Announcements delivered to Discord"})
		AnnouncementsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_announcements_dropped_total", Help: "Announcements dropped (unset channel or send failure)"})
		SubscribeAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_eventsub_subscribe_attempts_total", Help: "EventSub subscription attempts"})
		SubscribeFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_eventsub_subscribe_failures_total", Help: "EventSub subscription attempts that failed"})
		queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_announce_queue_depth", Help: "Current number of queued announcement tasks"})
	})
}

// SetQueueDepth records the current announcement queue depth.
func SetQueueDepth(n int) {
	if queueDepthGauge != nil {
		queueDepthGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
