// Package obs содержит HTTP-метрики Prometheus и эндпоинт /metrics.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Доменные счётчики. Инкрементируются в HTTP-слое.
var (
	ApprovalsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approv_approvals_sent_total",
		Help: "Approvals sent to clients.",
	})

	PortalResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approv_portal_responses_total",
			Help: "Client responses recorded on the portal.",
		},
		[]string{"decision"},
	)
)

// Init регистрирует метрики в default-регистре.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		ApprovalsSentTotal,
		PortalResponsesTotal,
	)
}

// Handler возвращает хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument измеряет RPS, латентность и запросы в полёте. Метка path
// содержит шаблон маршрута, а не конкретный URL, чтобы не раздувать кардинальность.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	}
}
