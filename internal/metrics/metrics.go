package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for authentication operations.
const (
	OutcomeSuccess           = "success"
	OutcomeDegraded          = "degraded"
	OutcomeCredentialError   = "credential_error"
	OutcomePreconditionError = "precondition_error"
	OutcomeInvalidInput      = "invalid_input"
	OutcomeBackendError      = "backend_error"
)

// Collector exposes SocialDog's Prometheus instruments.
type Collector struct {
	authOperations  *prometheus.CounterVec
	activeClients   prometheus.Gauge
	geocodeRequests *prometheus.CounterVec
	expiredSessions prometheus.Counter
}

// NewCollector creates the instruments and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialdog_auth_operations_total",
			Help: "Session manager operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "socialdog_active_clients",
			Help: "Browser clients with a live session manager.",
		}),
		geocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialdog_geocode_requests_total",
			Help: "Location search requests by outcome.",
		}, []string{"outcome"}),
		expiredSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialdog_expired_sessions_removed_total",
			Help: "Expired identity sessions deleted by the cleanup loop.",
		}),
	}

	reg.MustRegister(
		c.authOperations,
		c.activeClients,
		c.geocodeRequests,
		c.expiredSessions,
	)

	return c
}

// RecordOperation counts one manager operation.
func (c *Collector) RecordOperation(operation, outcome string) {
	c.authOperations.WithLabelValues(operation, outcome).Inc()
}

// SetActiveClients reports the current registry size.
func (c *Collector) SetActiveClients(n int) {
	c.activeClients.Set(float64(n))
}

// RecordGeocode counts one location search.
func (c *Collector) RecordGeocode(outcome string) {
	c.geocodeRequests.WithLabelValues(outcome).Inc()
}

// RecordExpiredSessions adds the number of sessions a cleanup pass removed.
func (c *Collector) RecordExpiredSessions(n int64) {
	if n > 0 {
		c.expiredSessions.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
