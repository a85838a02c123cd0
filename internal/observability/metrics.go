package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and sentinel processes.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	alertsDispatchedTotal *prometheus.CounterVec
	smsSentTotal          prometheus.Counter
	smsFailedTotal        *prometheus.CounterVec
	smsSendDuration       prometheus.Histogram
	triggerSignalsTotal   prometheus.Counter
	triggerEpisodesTotal  *prometheus.CounterVec
	locationFallbackTotal *prometheus.CounterVec
	dispatchInflight      prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "safeher",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "safeher",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		alertsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "safeher",
				Name:      "alerts_dispatched_total",
				Help:      "Alert attempts grouped by trigger kind and outcome.",
			},
			[]string{"trigger", "outcome"},
		),
		smsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "safeher",
				Name:      "sms_sent_total",
				Help:      "Total number of alert messages accepted for a recipient.",
			},
		),
		smsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "safeher",
				Name:      "sms_failed_total",
				Help:      "Total number of recipient deliveries that failed.",
			},
			[]string{"reason"},
		),
		smsSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "safeher",
				Name:      "sms_send_duration_seconds",
				Help:      "Gateway send duration in seconds per recipient.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		triggerSignalsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "safeher",
				Name:      "trigger_signals_total",
				Help:      "Total number of confirmation signals emitted by the background trigger.",
			},
		),
		triggerEpisodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "safeher",
				Name:      "trigger_episodes_total",
				Help:      "Background trigger episodes grouped by terminal result.",
			},
			[]string{"result"},
		),
		locationFallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "safeher",
				Name:      "location_fallback_total",
				Help:      "Location resolutions that did not use a fresh fix, grouped by source.",
			},
			[]string{"source"},
		),
		dispatchInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "safeher",
				Name:      "dispatch_inflight",
				Help:      "Number of alert dispatches currently running.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.alertsDispatchedTotal,
		m.smsSentTotal,
		m.smsFailedTotal,
		m.smsSendDuration,
		m.triggerSignalsTotal,
		m.triggerEpisodesTotal,
		m.locationFallbackTotal,
		m.dispatchInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncAlertDispatched(trigger string, outcome string) {
	if m == nil {
		return
	}
	m.alertsDispatchedTotal.WithLabelValues(normalizeLabel(trigger), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncSMSSent() {
	if m == nil {
		return
	}
	m.smsSentTotal.Inc()
}

func (m *Metrics) IncSMSFailed(reason string) {
	if m == nil {
		return
	}
	m.smsFailedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveSMSSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.smsSendDuration.Observe(seconds)
}

func (m *Metrics) IncTriggerSignal() {
	if m == nil {
		return
	}
	m.triggerSignalsTotal.Inc()
}

func (m *Metrics) IncTriggerEpisode(result string) {
	if m == nil {
		return
	}
	m.triggerEpisodesTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncLocationFallback(source string) {
	if m == nil {
		return
	}
	m.locationFallbackTotal.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *Metrics) IncDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Inc()
}

func (m *Metrics) DecDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
