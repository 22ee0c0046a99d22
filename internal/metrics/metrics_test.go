package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePost(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePost("discord", "published", 120*time.Millisecond)
	m.ObservePost("discord", "published", 80*time.Millisecond)
	m.ObservePost("twitter", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PostsTotal.WithLabelValues("discord", "published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostsTotal.WithLabelValues("twitter", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.PostDuration))
}

func TestObserveConnectionAndBulk(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveConnection("mastodon", "healthy")
	m.ObserveBulk()
	m.ObserveBulk()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionChecks.WithLabelValues("mastodon", "healthy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BulkPostsTotal))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePost("x", "published", time.Second)
		m.ObserveConnection("x", "healthy")
		m.ObserveBulk()
	})
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) }, "duplicate registration must be rejected")
}
