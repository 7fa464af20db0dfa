package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the verification domain.
type Metrics struct {
	SessionsCreated    prometheus.Counter
	VerifyOutcomes     *prometheus.CounterVec
	SessionsReopened   prometheus.Counter
	SessionsEvicted    prometheus.Counter
	ActiveSessions     prometheus.Gauge
	VerifierCallMs     *prometheus.HistogramVec
	CredentialsIssued  prometheus.Counter
	GlobalInvalidation prometheus.Counter
}

// New registers and returns verification metrics collectors.
func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_sessions_created_total",
			Help: "Total number of verification sessions created",
		}),
		VerifyOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agegate_verify_outcomes_total",
			Help: "Total number of proof verifications by outcome",
		}, []string{"result"}),
		SessionsReopened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_sessions_reopened_total",
			Help: "Total number of failed sessions reopened for a late-arriving proof",
		}),
		SessionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_sessions_evicted_total",
			Help: "Total number of sessions evicted by the TTL sweeper",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agegate_active_sessions",
			Help: "Current number of live verification sessions",
		}),
		VerifierCallMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agegate_verifier_call_duration_ms",
			Help:    "Duration of verifier backend calls in milliseconds, by operation",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"operation"}),
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_credentials_issued_total",
			Help: "Total number of age credentials issued",
		}),
		GlobalInvalidation: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agegate_global_invalidations_total",
			Help: "Total number of operator-triggered global credential invalidations",
		}),
	}
}

func (m *Metrics) IncrementSessionsCreated() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) IncrementVerifyOutcome(result string) {
	m.VerifyOutcomes.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementSessionsReopened() {
	m.SessionsReopened.Inc()
}

func (m *Metrics) IncrementSessionsEvicted(count int) {
	m.SessionsEvicted.Add(float64(count))
	m.ActiveSessions.Sub(float64(count))
}

// DecrementActiveSessions lowers the live-session gauge, e.g. after the
// operator's global clear.
func (m *Metrics) DecrementActiveSessions(count int) {
	m.ActiveSessions.Sub(float64(count))
}

func (m *Metrics) ObserveVerifierCall(operation string, start time.Time) {
	m.VerifierCallMs.WithLabelValues(operation).Observe(float64(time.Since(start).Milliseconds()))
}

func (m *Metrics) IncrementCredentialsIssued() {
	m.CredentialsIssued.Inc()
}

func (m *Metrics) IncrementGlobalInvalidation() {
	m.GlobalInvalidation.Inc()
}
