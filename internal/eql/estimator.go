package eql

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/eqlayer/internal/monitoring"
	"github.com/banshee-data/eqlayer/internal/timeutil"
)

// predictChunkRows bounds the kernel matrix built per prediction block.
const predictChunkRows = 2048

// Option customises an Estimator beyond its Config.
type Option func(*Estimator)

// WithSolver replaces the default CholeskySolver.
func WithSolver(s Solver) Option {
	return func(e *Estimator) { e.solver = s }
}

// WithLayoutPolicy replaces the policy named in the Config.
func WithLayoutPolicy(p LayoutPolicy) Option {
	return func(e *Estimator) { e.layout = p }
}

// WithKernelFunc replaces the kernel named in the Config.
func WithKernelFunc(k Kernel) Option {
	return func(e *Estimator) { e.kernel = k }
}

// WithClock sets the clock used for fit timestamps and durations.
func WithClock(c timeutil.Clock) Option {
	return func(e *Estimator) { e.clock = c }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Estimator) { e.metrics = m }
}

// Estimator fits equivalent layers. It keeps the most recent successful
// fit so Predict, Score, Grid and Profile can be called on it directly;
// each Fit produces a new Layer and never mutates an earlier one.
// An Estimator is safe for concurrent use.
type Estimator struct {
	cfg     Config
	solver  Solver
	layout  LayoutPolicy
	kernel  Kernel
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	latest atomic.Pointer[Layer]
}

// NewEstimator validates cfg and builds an Estimator. A nil cfg uses
// DefaultConfig.
func NewEstimator(cfg *Config, opts ...Option) (*Estimator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kernel, err := KernelByName(cfg.Kernel)
	if err != nil {
		return nil, err
	}
	layout, err := LayoutByName(cfg.Layout, cfg.BlockSize)
	if err != nil {
		return nil, err
	}

	e := &Estimator{
		cfg:    *cfg,
		solver: CholeskySolver{MaxCondition: cfg.MaxCondition},
		layout: layout,
		kernel: kernel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.solver == nil || e.layout == nil || e.kernel == nil {
		return nil, fmt.Errorf("%w: solver, layout and kernel must not be nil", ErrInvalidParameter)
	}
	e.clock = timeutil.OrReal(e.clock)
	return e, nil
}

// Config returns a copy of the estimator configuration.
func (e *Estimator) Config() Config { return e.cfg }

// Fit places the sources, builds the kernel matrix against the training
// coordinates and solves for the coefficients. On failure the previously
// fitted layer stays in place.
func (e *Estimator) Fit(obs Observations) (*Layer, error) {
	start := e.clock.Now()
	layer, err := e.fit(obs, start)
	sources := 0
	if layer != nil {
		sources = len(layer.coefs)
	}
	e.metrics.ObserveFit(err, e.clock.Since(start).Seconds(), sources)
	if err != nil {
		opsf("fit rejected: %v", err)
		return nil, err
	}
	e.latest.Store(layer)
	diagf("fit %s: %d observations, %d sources, damping=%g, cond=%.3g, residual=%.4g",
		layer.id, layer.diag.Observations, layer.diag.Sources, layer.damping, layer.diag.Condition, layer.diag.ResidualNorm)
	return layer, nil
}

func (e *Estimator) fit(obs Observations, at time.Time) (*Layer, error) {
	o, err := NewObservations(obs.Coordinates, obs.Data, obs.Weights)
	if err != nil {
		return nil, err
	}
	sources, err := e.layout.Positions(o.Coordinates, e.cfg.RelativeDepth)
	if err != nil {
		return nil, err
	}
	if sources.Len() == 0 {
		return nil, fmt.Errorf("%w: layout %s produced no sources", ErrShapeMismatch, e.layout.Name())
	}

	a, err := Jacobian(sources, o.Coordinates, e.kernel, e.cfg.Workers)
	if err != nil {
		return nil, err
	}
	e.metrics.AddJacobian(a.Dims())

	sol, err := e.solver.Solve(a, o.Data, o.Weights, e.cfg.Damping)
	if err != nil {
		return nil, err
	}
	if len(sol.Coefficients) != sources.Len() {
		return nil, fmt.Errorf("%w: solver returned %d coefficients for %d sources",
			ErrShapeMismatch, len(sol.Coefficients), sources.Len())
	}

	return &Layer{
		id:            uuid.New(),
		fittedAt:      at,
		sources:       sources,
		coefs:         append([]float64(nil), sol.Coefficients...),
		kernel:        e.kernel,
		layout:        e.layout.Name(),
		relativeDepth: e.cfg.RelativeDepth,
		damping:       e.cfg.Damping,
		region:        o.Coordinates.Region(),
		meanUpward:    stat.Mean(o.Coordinates.Upward, nil),
		diag:          sol.Diagnostics,
		workers:       e.cfg.Workers,
		metrics:       e.metrics,
	}, nil
}

// Layer returns the most recently fitted layer, or ErrNotFitted.
func (e *Estimator) Layer() (*Layer, error) {
	l := e.latest.Load()
	if l == nil {
		return nil, fmt.Errorf("%w: call Fit first", ErrNotFitted)
	}
	return l, nil
}

// Predict evaluates the most recent layer at coords.
func (e *Estimator) Predict(coords Coordinates) ([]float64, error) {
	return e.latest.Load().Predict(coords)
}

// Score computes R² of the most recent layer against obs.
func (e *Estimator) Score(obs Observations) (float64, error) {
	return e.latest.Load().Score(obs)
}

// Grid evaluates the most recent layer on a regular grid.
func (e *Estimator) Grid(req GridRequest) (*GridResult, error) {
	return e.latest.Load().Grid(req)
}

// Profile evaluates the most recent layer along a straight line.
func (e *Estimator) Profile(req ProfileRequest) (*Profile, error) {
	return e.latest.Load().Profile(req)
}

// Layer is a fitted equivalent layer: source positions plus one coefficient
// per source. It is immutable and safe to share between goroutines.
// Methods on a nil *Layer return ErrNotFitted.
type Layer struct {
	id            uuid.UUID
	fittedAt      time.Time
	sources       Coordinates
	coefs         []float64
	kernel        Kernel
	layout        string
	relativeDepth float64
	damping       float64
	region        Region
	meanUpward    float64
	diag          Diagnostics
	workers       int
	metrics       *monitoring.Metrics
}

func notFitted() error {
	return fmt.Errorf("%w: call Fit first", ErrNotFitted)
}

// ID identifies the fit for provenance.
func (l *Layer) ID() uuid.UUID {
	if l == nil {
		return uuid.Nil
	}
	return l.id
}

// FittedAt is the time the fit started.
func (l *Layer) FittedAt() time.Time {
	if l == nil {
		return time.Time{}
	}
	return l.fittedAt
}

// Sources returns a copy of the source positions.
func (l *Layer) Sources() Coordinates {
	if l == nil {
		return Coordinates{}
	}
	return l.sources.clone()
}

// Coefficients returns a copy of the fitted coefficients.
func (l *Layer) Coefficients() []float64 {
	if l == nil {
		return nil
	}
	return append([]float64(nil), l.coefs...)
}

// Damping is the damping used for the fit.
func (l *Layer) Damping() float64 {
	if l == nil {
		return 0
	}
	return l.damping
}

// RelativeDepth is the source depth used for the fit.
func (l *Layer) RelativeDepth() float64 {
	if l == nil {
		return 0
	}
	return l.relativeDepth
}

// KernelName names the Green's function of the layer.
func (l *Layer) KernelName() string {
	if l == nil {
		return ""
	}
	return l.kernel.Name()
}

// LayoutName names the source layout policy of the layer.
func (l *Layer) LayoutName() string {
	if l == nil {
		return ""
	}
	return l.layout
}

// Region is the horizontal bounding box of the training data.
func (l *Layer) Region() Region {
	if l == nil {
		return Region{}
	}
	return l.region
}

// MeanUpward is the mean upward coordinate of the training data.
func (l *Layer) MeanUpward() float64 {
	if l == nil {
		return 0
	}
	return l.meanUpward
}

// Diagnostics describes the solve that produced the layer.
func (l *Layer) Diagnostics() Diagnostics {
	if l == nil {
		return Diagnostics{}
	}
	return l.diag
}

// Predict evaluates the layer at coords. Any upward level is accepted,
// which is what provides upward and downward continuation.
func (l *Layer) Predict(coords Coordinates) ([]float64, error) {
	if l == nil {
		return nil, notFitted()
	}
	if err := coords.validate(); err != nil {
		return nil, err
	}
	coords, err := NewCoordinates(coords.Easting, coords.Northing, coords.Upward)
	if err != nil {
		return nil, err
	}

	k := coords.Len()
	out := make([]float64, k)
	if k == 0 {
		return out, nil
	}
	c := mat.NewVecDense(len(l.coefs), l.coefs)
	for lo := 0; lo < k; lo += predictChunkRows {
		hi := lo + predictChunkRows
		if hi > k {
			hi = k
		}
		block := Coordinates{
			Easting:  coords.Easting[lo:hi],
			Northing: coords.Northing[lo:hi],
			Upward:   coords.Upward[lo:hi],
		}
		a, err := Jacobian(l.sources, block, l.kernel, l.workers)
		if err != nil {
			return nil, err
		}
		l.metrics.AddJacobian(a.Dims())
		dst := mat.NewVecDense(hi-lo, out[lo:hi])
		dst.MulVec(a, c)
	}
	l.metrics.AddPredictions(k)
	return out, nil
}

// Score returns the coefficient of determination R² = 1 − SS_res/SS_tot
// between the layer's predictions and obs.Data, weighted by obs.Weights
// when present. It measures fit at those locations only; it says nothing
// about grid or continuation error.
func (l *Layer) Score(obs Observations) (float64, error) {
	if l == nil {
		return 0, notFitted()
	}
	if err := obs.Coordinates.validate(); err != nil {
		return 0, err
	}
	n := obs.Coordinates.Len()
	if n == 0 || len(obs.Data) != n {
		return 0, fmt.Errorf("%w: %d coordinates but %d data values", ErrShapeMismatch, n, len(obs.Data))
	}
	if err := checkData(obs.Data); err != nil {
		return 0, err
	}
	if err := checkWeights(obs.Weights, n); err != nil {
		return 0, err
	}
	if weightedSumOfSquares(obs.Data, obs.Weights) == 0 {
		return 0, fmt.Errorf("%w: observed values have no weighted variance, R² is undefined", ErrDegenerateData)
	}

	pred, err := l.Predict(obs.Coordinates)
	if err != nil {
		return 0, err
	}
	return stat.RSquaredFrom(pred, obs.Data, obs.Weights), nil
}

// weightedSumOfSquares is SS_tot, the denominator of R². It is exactly zero
// when every positively weighted value is the same.
func weightedSumOfSquares(data, weights []float64) float64 {
	constant, seen := true, false
	var first float64
	for i, v := range data {
		if weights != nil && weights[i] == 0 {
			continue
		}
		if !seen {
			first, seen = v, true
		} else if v != first {
			constant = false
			break
		}
	}
	if constant {
		return 0
	}

	mean := stat.Mean(data, weights)
	var ss float64
	for i, v := range data {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		ss += w * (v - mean) * (v - mean)
	}
	return ss
}
