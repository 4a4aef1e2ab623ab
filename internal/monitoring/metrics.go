package monitoring

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "eql"

// Metrics holds the Prometheus counters and histograms for fits, predictions
// and grids.
type Metrics struct {
	Fits             *prometheus.CounterVec // labels: outcome={ok,error}
	FitDuration      prometheus.Histogram
	FitSources       prometheus.Histogram
	JacobianElements prometheus.Counter
	Predictions      prometheus.Counter
	GridCells        prometheus.Counter
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		Fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      help("Equivalent-layer fits by outcome."),
		}, []string{"outcome"}),
		FitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      help("Duration of a complete fit: layout, kernel matrix and solve."),
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		FitSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_sources",
			Help:      help("Number of point sources per fitted layer."),
			Buckets:   prometheus.ExponentialBuckets(4, 4, 8),
		}),
		JacobianElements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jacobian_elements_total",
			Help:      help("Kernel matrix elements evaluated."),
		}),
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      help("Points at which a fitted layer was evaluated."),
		}),
		GridCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_cells_total",
			Help:      help("Grid cells produced across all output fields."),
		}),
	}
}

// NewMetrics creates and registers all estimator metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates the estimator metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics(true)
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Fits,
		m.FitDuration,
		m.FitSources,
		m.JacobianElements,
		m.Predictions,
		m.GridCells,
	}
}

// ObserveFit records one fit attempt. A nil receiver is a no-op so callers
// can leave metrics unset.
func (m *Metrics) ObserveFit(err error, seconds float64, sources int) {
	if m == nil {
		return
	}
	if err != nil {
		m.Fits.WithLabelValues("error").Inc()
		return
	}
	m.Fits.WithLabelValues("ok").Inc()
	m.FitDuration.Observe(seconds)
	m.FitSources.Observe(float64(sources))
}

// AddJacobian counts kernel matrix elements.
func (m *Metrics) AddJacobian(rows, cols int) {
	if m == nil {
		return
	}
	m.JacobianElements.Add(float64(rows) * float64(cols))
}

// AddPredictions counts evaluated points.
func (m *Metrics) AddPredictions(n int) {
	if m == nil {
		return
	}
	m.Predictions.Add(float64(n))
}

// AddGridCells counts produced grid cells.
func (m *Metrics) AddGridCells(n int) {
	if m == nil {
		return
	}
	m.GridCells.Add(float64(n))
}

// WriteText gathers every metric family from g and writes it to w in the
// Prometheus text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
