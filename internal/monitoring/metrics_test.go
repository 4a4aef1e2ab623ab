package monitoring

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveFit(t *testing.T) {
	m := NewMetricsForTesting()

	m.ObserveFit(nil, 0.25, 16)
	m.ObserveFit(nil, 0.5, 16)
	m.ObserveFit(errors.New("boom"), 0.1, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fits.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fits.WithLabelValues("error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Fits))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetricsForTesting()

	m.AddJacobian(10, 4)
	m.AddPredictions(7)
	m.AddGridCells(12)
	m.AddGridCells(3)

	assert.Equal(t, 40.0, testutil.ToFloat64(m.JacobianElements))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Predictions))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.GridCells))
}

func TestMetrics_NilReceiverIsNoOp(t *testing.T) {
	var m *Metrics

	// None of these should panic.
	m.ObserveFit(nil, 1, 1)
	m.AddJacobian(1, 1)
	m.AddPredictions(1)
	m.AddGridCells(1)
}

func TestNewMetrics_Registers(t *testing.T) {
	m := NewMetrics()
	assert.Len(t, m.collectors(), 6)

	// A second registration with the same names must panic.
	assert.Panics(t, func() { NewMetrics() })
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)
	m.ObserveFit(nil, 0.2, 9)
	m.AddGridCells(81)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))

	out := buf.String()
	assert.Contains(t, out, "# HELP eql_fits_total Equivalent-layer fits by outcome.")
	assert.Contains(t, out, "# TYPE eql_grid_cells_total counter")
	assert.Contains(t, out, `eql_fits_total{outcome="ok"} 1`)
	assert.Contains(t, out, "eql_grid_cells_total 81")
	assert.Contains(t, out, "eql_fit_sources_count 1")
}
