package transport

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"eni-go/internal/eni"
)

// Metrics exports gateway counters to Prometheus. It implements eni.Metrics
// for the dispatcher and records HTTP traffic for the middleware.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	sessions        prometheus.GaugeFunc
}

var _ eni.Metrics = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg. The
// sessions gauge reads the live session count from sessions.
func NewMetrics(reg prometheus.Registerer, sessions *eni.SessionRegistry) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eni",
				Subsystem: "gateway",
				Name:      "commands_total",
				Help:      "Dispatched ENI commands by result code.",
			},
			[]string{"command", "code"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eni",
				Subsystem: "gateway",
				Name:      "command_duration_seconds",
				Help:      "ENI command duration in seconds, including the wait for the gateway.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eni",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eni",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		sessions: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "eni",
				Subsystem: "gateway",
				Name:      "sessions",
				Help:      "Open client sessions.",
			},
			func() float64 { return float64(sessions.Count()) },
		),
	}
	reg.MustRegister(m.commands, m.commandDuration, m.httpRequests, m.httpDuration, m.sessions)
	return m
}

// ObserveCommand records one dispatched command. code is 0 on success.
func (m *Metrics) ObserveCommand(command string, code int, elapsed time.Duration) {
	m.commands.WithLabelValues(command, strconv.Itoa(code)).Inc()
	m.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(elapsed.Seconds())
}
