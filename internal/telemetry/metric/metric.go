// Package metric provides Prometheus metrics for KeyMesh.
//
// It exposes activation, verification, and issuance counters plus HTTP
// request metrics in Prometheus format.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values for activation/verification outcomes.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultInvalid  = "invalid"
	ResultValid    = "valid"
)

// Registry holds all application metrics.
type Registry struct {
	prom *prometheus.Registry

	// Activation metrics
	ActivationsTotal   *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec
	CodesIssuedTotal   *prometheus.CounterVec
	LicensesExpired    prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a metrics registry with all application metrics
// registered, plus the standard Go runtime and process collectors.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		prom: prom,

		ActivationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keymesh",
			Name:      "activations_total",
			Help:      "Activation attempts by license kind and result",
		}, []string{"kind", "result"}),

		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keymesh",
			Name:      "verifications_total",
			Help:      "License verifications by result",
		}, []string{"result"}),

		CodesIssuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keymesh",
			Name:      "codes_issued_total",
			Help:      "Activation codes issued by license kind",
		}, []string{"kind"}),

		LicensesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keymesh",
			Name:      "licenses_expired_total",
			Help:      "Licenses transitioned to expired during verification",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keymesh",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status code",
		}, []string{"method", "route", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keymesh",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	prom.MustRegister(
		r.ActivationsTotal,
		r.VerificationsTotal,
		r.CodesIssuedTotal,
		r.LicensesExpired,
		r.RequestsTotal,
		r.RequestDuration,
	)

	return r
}

// Prometheus exposes the underlying registry for components that
// register their own collectors (the storage engine does).
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
