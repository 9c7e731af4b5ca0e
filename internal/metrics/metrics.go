// Package metrics exposes Prometheus counters for board operations.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace   = "scrumboard"
	resultLabel = "result"
	eventLabel  = "event"
	methodLabel = "method"
	routeLabel  = "route"
	statusLabel = "status"
)

// Move results.
const (
	MoveOK            = "ok"
	MoveMismatch      = "mismatch"
	MoveNotFound      = "not_found"
	MoveInvalid       = "invalid"
	MoveInternalError = "error"
)

// Membership events.
const (
	EventJoinRequested = "join_requested"
	EventAccepted      = "accepted"
	EventRejected      = "rejected"
	EventLeft          = "left"
)

// Metrics holds the collectors of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	taskMovesTotal        *prometheus.CounterVec
	membershipEventsTotal *prometheus.CounterVec
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestSeconds    *prometheus.HistogramVec
}

func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		taskMovesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "moves_total",
			Help:      "The total count of task moves by result.",
		}, []string{resultLabel}),
		membershipEventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "membership_events_total",
			Help:      "The total count of membership workflow events.",
		}, []string{eventLabel}),
		httpRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "The total count of handled HTTP requests.",
		}, []string{methodLabel, routeLabel, statusLabel}),
		httpRequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "The response time of HTTP requests.",
		}, []string{methodLabel, routeLabel}),
	}, nil
}

func (m *Metrics) AddTaskMove(result string) {
	if m == nil {
		return
	}
	m.taskMovesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) AddMembershipEvent(event string) {
	if m == nil {
		return
	}
	m.membershipEventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.httpRequestSeconds.WithLabelValues(method, route).Observe(seconds)
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
