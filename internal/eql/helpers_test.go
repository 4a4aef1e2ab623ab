package eql

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// surveyCoordinates lays out an nx×ny survey with the given spacing and a
// deterministic wobble in height around upward0.
func surveyCoordinates(nx, ny int, spacing, upward0 float64) Coordinates {
	var pts []Point
	for i := 0; i < ny; i++ {
		for j := 0; j < nx; j++ {
			k := float64(i*nx + j)
			pts = append(pts, Point{
				Easting:  float64(j) * spacing,
				Northing: float64(i) * spacing,
				Upward:   upward0 + 20*math.Sin(0.7*k),
			})
		}
	}
	return CoordinatesFromPoints(pts)
}

// forwardModel evaluates a known set of point sources at coords.
func forwardModel(t *testing.T, k Kernel, sources []Point, coefs []float64, coords Coordinates) []float64 {
	t.Helper()
	a, err := Jacobian(CoordinatesFromPoints(sources), coords, k, 1)
	require.NoError(t, err)
	out := make([]float64, coords.Len())
	for i := range out {
		for j, c := range coefs {
			out[i] += a.At(i, j) * c
		}
	}
	return out
}

// deepSources is the generating model used by most fitting tests.
var deepSources = []Point{
	{Easting: 120, Northing: 180, Upward: -400},
	{Easting: 320, Northing: 90, Upward: -300},
}

var deepCoefs = []float64{5e4, -3e4}

func syntheticObservations(t *testing.T, k Kernel, coords Coordinates) Observations {
	t.Helper()
	obs, err := NewObservations(coords, forwardModel(t, k, deepSources, deepCoefs, coords), nil)
	require.NoError(t, err)
	return obs
}

func mustEstimator(t *testing.T, cfg *Config, opts ...Option) *Estimator {
	t.Helper()
	e, err := NewEstimator(cfg, opts...)
	require.NoError(t, err)
	return e
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
