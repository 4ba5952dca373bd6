package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trust engine.
type Metrics struct {
	ObservationsIngested  prometheus.Counter
	ObservationsRejected  prometheus.Counter
	ConflictsDetected     prometheus.Counter
	VerificationsSubmitted *prometheus.CounterVec
	DisputesOpened        prometheus.Counter
	DisputesResolved      *prometheus.CounterVec
	VotesCast             prometheus.Counter
	CredibilityAdjusted   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ObservationsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "naturewatch_observations_ingested_total",
			Help: "Total number of observations accepted at intake",
		}),
		ObservationsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "naturewatch_observations_rejected_total",
			Help: "Total number of observations rejected at intake",
		}),
		ConflictsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "naturewatch_conflicts_detected_total",
			Help: "Total number of submissions flagged as conflicting",
		}),
		VerificationsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "naturewatch_verifications_submitted_total",
			Help: "Total number of verification records, by tier",
		}, []string{"tier"}),
		DisputesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "naturewatch_disputes_opened_total",
			Help: "Total number of disputes raised",
		}),
		DisputesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "naturewatch_disputes_resolved_total",
			Help: "Total number of disputes resolved, by outcome",
		}, []string{"outcome"}),
		VotesCast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "naturewatch_votes_cast_total",
			Help: "Total number of dispute votes recorded",
		}),
		CredibilityAdjusted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "naturewatch_credibility_adjustments_total",
			Help: "Total number of credibility ledger entries appended",
		}),
	}
}

// Increment helpers so services depend on a narrow method surface.

func (m *Metrics) IncObservationsIngested() { m.ObservationsIngested.Inc() }
func (m *Metrics) IncObservationsRejected() { m.ObservationsRejected.Inc() }
func (m *Metrics) IncConflictsDetected()    { m.ConflictsDetected.Inc() }
func (m *Metrics) IncCredibilityAdjusted()  { m.CredibilityAdjusted.Inc() }
func (m *Metrics) IncDisputesOpened()       { m.DisputesOpened.Inc() }
func (m *Metrics) IncVotesCast()            { m.VotesCast.Inc() }

func (m *Metrics) IncVerificationsSubmitted(tier string) {
	m.VerificationsSubmitted.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncDisputesResolved(outcome string) {
	m.DisputesResolved.WithLabelValues(outcome).Inc()
}
