// Package metrics exposes Prometheus instrumentation for the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow counters and histograms. A nil *Metrics is safe
// to call, so services can run without instrumentation in tests.
type Metrics struct {
	AuditsCreated        prometheus.Counter
	ObservationsRecorded prometheus.Counter
	NoticesIssued        prometheus.Counter
	BulkItems            *prometheus.CounterVec
	ResponsesSubmitted   prometheus.Counter
	AutoAccepted         prometheus.Counter
	SweepClaimsMissed    prometheus.Counter
	SweepDuration        prometheus.Histogram
	ScorecardsPublished  prometheus.Counter
}

// New creates and registers all workflow metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		AuditsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_audits_created_total",
			Help: "Total audits created.",
		}),
		ObservationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_observations_recorded_total",
			Help: "Total observations recorded across all audits.",
		}),
		NoticesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_notices_issued_total",
			Help: "Total show-cause notices issued, bulk included.",
		}),
		BulkItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_bulk_notice_items_total",
			Help: "Bulk issuance items by outcome.",
		}, []string{"outcome"}),
		ResponsesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_notice_responses_total",
			Help: "Total agency responses submitted.",
		}),
		AutoAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_observations_auto_accepted_total",
			Help: "Observations auto-accepted by the deadline sweep.",
		}),
		SweepClaimsMissed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_sweep_claims_missed_total",
			Help: "Sweep claims that found the observation already resolved.",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vigil_sweep_duration_seconds",
			Help:    "Duration of deadline sweep runs.",
			Buckets: prometheus.DefBuckets,
		}),
		ScorecardsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_scorecards_published_total",
			Help: "Scorecards published, updates included.",
		}),
	}
}

func (m *Metrics) IncAuditsCreated() {
	if m != nil {
		m.AuditsCreated.Inc()
	}
}

func (m *Metrics) IncObservationsRecorded() {
	if m != nil {
		m.ObservationsRecorded.Inc()
	}
}

func (m *Metrics) IncNoticesIssued() {
	if m != nil {
		m.NoticesIssued.Inc()
	}
}

func (m *Metrics) IncBulkItem(outcome string) {
	if m != nil {
		m.BulkItems.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncResponsesSubmitted() {
	if m != nil {
		m.ResponsesSubmitted.Inc()
	}
}

func (m *Metrics) IncAutoAccepted() {
	if m != nil {
		m.AutoAccepted.Inc()
	}
}

func (m *Metrics) IncSweepClaimsMissed() {
	if m != nil {
		m.SweepClaimsMissed.Inc()
	}
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	if m != nil {
		m.SweepDuration.Observe(seconds)
	}
}

func (m *Metrics) IncScorecardsPublished() {
	if m != nil {
		m.ScorecardsPublished.Inc()
	}
}
