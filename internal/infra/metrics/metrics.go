// Package metrics exposes Prometheus counters for the external media player.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the external media player.
type Metrics struct {
	registry           *prometheus.Registry
	directivesTotal    *prometheus.CounterVec
	directiveFailures  *prometheus.CounterVec
	focusTransitions   *prometheus.CounterVec
	acquireRequests    prometheus.Counter
	focusWaitTimeouts  prometheus.Counter
	registeredAdapters prometheus.Gauge
	httpRequests       *prometheus.CounterVec
}

// New creates and registers the metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	directivesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emp_directives_total",
		Help: "Total number of directives received",
	}, []string{"namespace", "name"})
	directiveFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emp_directive_failures_total",
		Help: "Total number of directives reported as failed",
	}, []string{"namespace", "name", "type"})
	focusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emp_focus_transitions_total",
		Help: "Focus changes applied by the arbitrator",
	}, []string{"state"})
	acquireRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emp_focus_acquire_requests_total",
		Help: "Channel acquire requests sent to the focus manager",
	})
	focusWaitTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emp_focus_wait_timeouts_total",
		Help: "Focus change notifications that timed out waiting for the player activity",
	})
	registeredAdapters := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emp_registered_adapters",
		Help: "Number of registered adapter handlers",
	})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emp_http_requests_total",
		Help: "HTTP requests served, by route and status class",
	}, []string{"route", "status"})

	registry.MustRegister(
		directivesTotal,
		directiveFailures,
		focusTransitions,
		acquireRequests,
		focusWaitTimeouts,
		registeredAdapters,
		httpRequests,
	)

	return &Metrics{
		registry:           registry,
		directivesTotal:    directivesTotal,
		directiveFailures:  directiveFailures,
		focusTransitions:   focusTransitions,
		acquireRequests:    acquireRequests,
		focusWaitTimeouts:  focusWaitTimeouts,
		registeredAdapters: registeredAdapters,
		httpRequests:       httpRequests,
	}
}

// IncDirective counts a received directive.
func (m *Metrics) IncDirective(namespace, name string) {
	if m == nil {
		return
	}
	m.directivesTotal.WithLabelValues(namespace, name).Inc()
}

// IncDirectiveFailure counts a failed directive by exception type.
func (m *Metrics) IncDirectiveFailure(namespace, name, errType string) {
	if m == nil {
		return
	}
	m.directiveFailures.WithLabelValues(namespace, name, errType).Inc()
}

// IncFocusTransition counts an applied focus change.
func (m *Metrics) IncFocusTransition(state string) {
	if m == nil {
		return
	}
	m.focusTransitions.WithLabelValues(state).Inc()
}

// IncAcquireRequests counts a channel acquire request.
func (m *Metrics) IncAcquireRequests() {
	if m == nil {
		return
	}
	m.acquireRequests.Inc()
}

// IncFocusWaitTimeouts counts a focus wait that ran out of time.
func (m *Metrics) IncFocusWaitTimeouts() {
	if m == nil {
		return
	}
	m.focusWaitTimeouts.Inc()
}

// SetRegisteredAdapters sets the registered adapter gauge.
func (m *Metrics) SetRegisteredAdapters(n int) {
	if m == nil {
		return
	}
	m.registeredAdapters.Set(float64(n))
}

// IncHTTPRequest counts a served HTTP request. status is grouped by class,
// e.g. "2xx".
func (m *Metrics) IncHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
}

// Handler returns an http.Handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
