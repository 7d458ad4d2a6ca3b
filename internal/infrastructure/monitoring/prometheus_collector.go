package monitoring

import (
	"strconv"
	"time"

	"chatgate/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics on top of a Prometheus
// registry.
type PrometheusCollector struct {
	subscriptionsActive   *prometheus.GaugeVec
	subscriptionsOpened   *prometheus.CounterVec
	subscriptionFailures  *prometheus.CounterVec
	accessEvaluations     *prometheus.CounterVec
	messagesAppended      prometheus.Counter
	messageAppendFailures prometheus.Counter
	tokenRequests         *prometheus.CounterVec
	tokenRequestDuration  prometheus.Histogram
	roomsCreated          prometheus.Counter

	websocketConnections prometheus.Gauge
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collector's metrics on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		subscriptionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatgate_subscriptions_active",
			Help: "Live store subscriptions by kind",
		}, []string{"kind"}),

		subscriptionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_subscriptions_opened_total",
			Help: "Store subscriptions opened by kind",
		}, []string{"kind"}),

		subscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_subscription_failures_total",
			Help: "Store subscriptions that ended with an error",
		}, []string{"kind"}),

		accessEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_access_evaluations_total",
			Help: "Room access decisions by result",
		}, []string{"result"}),

		messagesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_messages_appended_total",
			Help: "Chat messages written to the store",
		}),

		messageAppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_message_append_failures_total",
			Help: "Chat message writes that failed",
		}),

		tokenRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_token_requests_total",
			Help: "Video token requests by result",
		}, []string{"result"}),

		tokenRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatgate_token_request_duration_seconds",
			Help:    "Latency of video token requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_rooms_created_total",
			Help: "Rooms created",
		}),

		websocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatgate_websocket_connections",
			Help: "Open WebSocket feed connections",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) SubscriptionOpened(kind string) {
	p.subscriptionsOpened.WithLabelValues(kind).Inc()
	p.subscriptionsActive.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) SubscriptionClosed(kind string) {
	p.subscriptionsActive.WithLabelValues(kind).Dec()
}

func (p *PrometheusCollector) SubscriptionFailed(kind string) {
	p.subscriptionFailures.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) AccessEvaluated(granted bool) {
	result := "denied"
	if granted {
		result = "granted"
	}
	p.accessEvaluations.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) MessageAppended() {
	p.messagesAppended.Inc()
}

func (p *PrometheusCollector) MessageAppendFailed() {
	p.messageAppendFailures.Inc()
}

func (p *PrometheusCollector) TokenRequested(success bool, duration time.Duration) {
	result := "error"
	if success {
		result = "success"
	}
	p.tokenRequests.WithLabelValues(result).Inc()
	p.tokenRequestDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RoomCreated() {
	p.roomsCreated.Inc()
}

func (p *PrometheusCollector) WebSocketConnected() {
	p.websocketConnections.Inc()
}

func (p *PrometheusCollector) WebSocketDisconnected() {
	p.websocketConnections.Dec()
}

// HTTPMiddleware counts requests by route template, not raw path, to keep
// label cardinality bounded.
func (p *PrometheusCollector) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		p.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		p.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var _ ports.Metrics = (*PrometheusCollector)(nil)
