package livesync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
)

// Pass outcomes
const (
	outcomeApplied   = "applied"
	outcomeFailed    = "failed"
	outcomeStale     = "stale"
	outcomeDiscarded = "discarded"
)

// Metrics holds the Prometheus collectors of a Controller.
// A nil *Metrics records nothing.
type Metrics struct {
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	notifications *prometheus.CounterVec
	teams         prometheus.Gauge
	live          prometheus.Gauge
}

// NewMetrics registers the live sync collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Aggregation passes by outcome.",
		}, []string{"outcome"}),
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leaderboard",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Time spent fetching and aggregating one pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Subsystem: "sync",
			Name:      "notifications_total",
			Help:      "Change notifications received by topic.",
		}, []string{"topic"}),
		teams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "leaderboard",
			Name:      "teams",
			Help:      "Teams in the published snapshot.",
		}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "leaderboard",
			Subsystem: "sync",
			Name:      "live",
			Help:      "1 while all change streams are open.",
		}),
	}
}

func (m *Metrics) pass(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) notification(topic changefeed.Topic) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(topic)).Inc()
}

func (m *Metrics) published(teams int) {
	if m == nil {
		return
	}
	m.teams.Set(float64(teams))
}

func (m *Metrics) setLive(live bool) {
	if m == nil {
		return
	}
	if live {
		m.live.Set(1)
	} else {
		m.live.Set(0)
	}
}
