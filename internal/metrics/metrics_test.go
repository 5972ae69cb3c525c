package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Cycle(ResultPublished)
	m.Cycle(ResultPublished)
	m.Cycle(ResultFetchFailed)
	m.Triggered(3)
	m.Dequeued(2)
	m.Exited(true)
	m.Exited(false)
	m.Exited(false)
	m.Launched()
	m.Discovery(DiscoveryEmpty)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistrationCycles.WithLabelValues(ResultPublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationCycles.WithLabelValues(ResultFetchFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationTriggers))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessExits.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProcessExits.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessLaunches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscoveryAttempts.WithLabelValues(DiscoveryEmpty)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Cycle(ResultReset)
		m.Triggered(1)
		m.Dequeued(0)
		m.Exited(true)
		m.Launched()
		m.Discovery(DiscoveryFound)
	})
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.Launched()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessLaunches))
}
