package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("nearest_neighbor", 10, 0.2, nil)
	m.Observe("nearest_neighbor", 5, 0.1, nil)
	m.Observe("buffer", 3, 0.1, errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.Runs.WithLabelValues("nearest_neighbor", "ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("buffer", "error")), 1e-9)
	assert.InDelta(t, 15, testutil.ToFloat64(m.FeaturesWritten.WithLabelValues("nearest_neighbor")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(m.FeaturesWritten.WithLabelValues("buffer")), 1e-9)

	n, err := testutil.GatherAndCount(reg, "geojoin_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
