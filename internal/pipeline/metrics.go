package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/taskbot/internal/resolution"
	"github.com/fyrsmithlabs/taskbot/internal/session"
)

// Metrics exports pipeline counters to Prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	sessions  prometheus.GaugeFunc
	decisions *prometheus.CounterVec
	commits   *prometheus.CounterVec
	expired   prometheus.Counter
}

// NewMetrics creates the collectors. store backs the live-session gauge.
func NewMetrics(store *session.Store) *Metrics {
	return &Metrics{
		sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "taskbot",
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}, func() float64 { return float64(store.Len()) }),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskbot",
			Name:      "resolution_decisions_total",
			Help:      "Resolution decisions by action.",
		}, []string{"action"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskbot",
			Name:      "commits_total",
			Help:      "Commits handed to the destination system by outcome.",
		}, []string{"outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskbot",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed by the idle sweep.",
		}),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.sessions, m.decisions, m.commits, m.expired} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordDecision counts one resolution decision.
func (m *Metrics) RecordDecision(a resolution.Action) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(a)).Inc()
}

// RecordCommit counts one commit attempt.
func (m *Metrics) RecordCommit(ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.commits.WithLabelValues(outcome).Inc()
}

// RecordExpired counts sessions removed by a sweep.
func (m *Metrics) RecordExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.expired.Add(float64(n))
}
