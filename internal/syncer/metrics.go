package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes used as the "outcome" label.
const (
	OutcomeSynced   = "synced"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
	InFlight       prometheus.Gauge
	ReclaimedTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelog_sync_submissions_total",
			Help: "Entry submissions to the backend by outcome",
		}, []string{"outcome"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelog_sync_sweep_duration_seconds",
			Help:    "Duration of sync sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicelog_sync_inflight_submissions",
			Help: "Entry submissions currently in flight",
		}),
		ReclaimedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicelog_sync_reclaimed_total",
			Help: "Entries reclaimed from a stuck syncing state",
		}),
	}
}

func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.InFlight.Set(float64(n))
}

func (m *Metrics) AddReclaimed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ReclaimedTotal.Add(float64(n))
}
