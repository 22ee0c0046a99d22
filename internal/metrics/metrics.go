package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "socialcast"

// Metrics holds the collectors recorded by the manager.
type Metrics struct {
	PostsTotal       *prometheus.CounterVec
	PostDuration     *prometheus.HistogramVec
	ConnectionChecks *prometheus.CounterVec
	BulkPostsTotal   prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// callers that only want in-process counts do not touch the global one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		PostsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_total",
				Help:      "Posts attempted per platform by outcome",
			},
			[]string{"platform", "status"},
		),
		PostDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "post_duration_seconds",
				Help:      "Duration of a single platform post in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"platform"},
		),
		ConnectionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_checks_total",
				Help:      "Connection checks per platform by health",
			},
			[]string{"platform", "health"},
		),
		BulkPostsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_posts_total",
				Help:      "Multi-platform post requests dispatched",
			},
		),
	}
}

// ObservePost records one platform post. Safe on a nil receiver.
func (m *Metrics) ObservePost(platform, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PostsTotal.WithLabelValues(platform, status).Inc()
	m.PostDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// ObserveConnection records one connection check. Safe on a nil receiver.
func (m *Metrics) ObserveConnection(platform, health string) {
	if m == nil {
		return
	}
	m.ConnectionChecks.WithLabelValues(platform, health).Inc()
}

// ObserveBulk records one fan-out. Safe on a nil receiver.
func (m *Metrics) ObserveBulk() {
	if m == nil {
		return
	}
	m.BulkPostsTotal.Inc()
}
