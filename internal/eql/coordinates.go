package eql

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Point is a single location in a right-handed easting, northing, upward frame.
type Point struct {
	Easting  float64
	Northing float64
	Upward   float64
}

// Coordinates holds K points as parallel arrays. Values are copied on
// construction, so a Coordinates never aliases caller memory.
type Coordinates struct {
	Easting  []float64
	Northing []float64
	Upward   []float64
}

// NewCoordinates validates and copies a coordinate triple.
func NewCoordinates(easting, northing, upward []float64) (Coordinates, error) {
	if len(easting) != len(northing) || len(easting) != len(upward) {
		return Coordinates{}, fmt.Errorf("%w: coordinate arrays have lengths %d, %d, %d",
			ErrShapeMismatch, len(easting), len(northing), len(upward))
	}
	names := [3]string{"easting", "northing", "upward"}
	for k, arr := range [3][]float64{easting, northing, upward} {
		for i, v := range arr {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Coordinates{}, fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidParameter, names[k], i)
			}
		}
	}
	return Coordinates{
		Easting:  append([]float64(nil), easting...),
		Northing: append([]float64(nil), northing...),
		Upward:   append([]float64(nil), upward...),
	}, nil
}

// CoordinatesAt broadcasts a single upward value over horizontal positions.
func CoordinatesAt(easting, northing []float64, upward float64) (Coordinates, error) {
	u := make([]float64, len(easting))
	for i := range u {
		u[i] = upward
	}
	return NewCoordinates(easting, northing, u)
}

// CoordinatesFromPoints packs points into array form.
func CoordinatesFromPoints(points []Point) Coordinates {
	c := Coordinates{
		Easting:  make([]float64, len(points)),
		Northing: make([]float64, len(points)),
		Upward:   make([]float64, len(points)),
	}
	for i, p := range points {
		c.Easting[i] = p.Easting
		c.Northing[i] = p.Northing
		c.Upward[i] = p.Upward
	}
	return c
}

// Len returns the number of points.
func (c Coordinates) Len() int { return len(c.Easting) }

// At returns the i-th point.
func (c Coordinates) At(i int) Point {
	return Point{Easting: c.Easting[i], Northing: c.Northing[i], Upward: c.Upward[i]}
}

// Region returns the horizontal bounding box of the coordinates.
func (c Coordinates) Region() Region {
	if c.Len() == 0 {
		return Region{}
	}
	return Region{
		West:  floats.Min(c.Easting),
		East:  floats.Max(c.Easting),
		South: floats.Min(c.Northing),
		North: floats.Max(c.Northing),
	}
}

func (c Coordinates) clone() Coordinates {
	return Coordinates{
		Easting:  append([]float64(nil), c.Easting...),
		Northing: append([]float64(nil), c.Northing...),
		Upward:   append([]float64(nil), c.Upward...),
	}
}

func (c Coordinates) validate() error {
	if len(c.Easting) != len(c.Northing) || len(c.Easting) != len(c.Upward) {
		return fmt.Errorf("%w: coordinate arrays have lengths %d, %d, %d",
			ErrShapeMismatch, len(c.Easting), len(c.Northing), len(c.Upward))
	}
	return nil
}

// Observations is the training set: N coordinates, N observed values and
// optional per-point weights.
type Observations struct {
	Coordinates Coordinates
	Data        []float64
	Weights     []float64
}

// NewObservations validates the training set. Weights may be nil.
// Two observations at identical coordinates are rejected because their
// sources would coincide.
func NewObservations(coords Coordinates, data, weights []float64) (Observations, error) {
	if err := coords.validate(); err != nil {
		return Observations{}, err
	}
	n := coords.Len()
	if n == 0 {
		return Observations{}, fmt.Errorf("%w: no observations", ErrShapeMismatch)
	}
	if len(data) != n {
		return Observations{}, fmt.Errorf("%w: %d coordinates but %d data values", ErrShapeMismatch, n, len(data))
	}
	if err := checkData(data); err != nil {
		return Observations{}, err
	}
	if err := checkWeights(weights, n); err != nil {
		return Observations{}, err
	}

	seen := make(map[Point]int, n)
	for i := 0; i < n; i++ {
		p := coords.At(i)
		if j, ok := seen[p]; ok {
			return Observations{}, fmt.Errorf("%w: observations %d and %d share coordinates (%g, %g, %g)",
				ErrDegenerateData, j, i, p.Easting, p.Northing, p.Upward)
		}
		seen[p] = i
	}

	obs := Observations{
		Coordinates: coords.clone(),
		Data:        append([]float64(nil), data...),
	}
	if weights != nil {
		obs.Weights = append([]float64(nil), weights...)
	}
	return obs, nil
}

func checkData(data []float64) error {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: data[%d] is not finite", ErrInvalidParameter, i)
		}
	}
	return nil
}

// checkWeights accepts nil, or n finite non-negative weights with at least
// one positive.
func checkWeights(weights []float64, n int) error {
	if weights == nil {
		return nil
	}
	if len(weights) != n {
		return fmt.Errorf("%w: %d coordinates but %d weights", ErrShapeMismatch, n, len(weights))
	}
	positive := false
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight[%d]=%g must be finite and non-negative", ErrInvalidParameter, i, w)
		}
		if w > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("%w: all weights are zero", ErrInvalidParameter)
	}
	return nil
}

// Len returns the number of observations.
func (o Observations) Len() int { return o.Coordinates.Len() }

// WeightsFromUncertainty converts per-point standard deviations to 1/σ² weights.
func WeightsFromUncertainty(sigma []float64) ([]float64, error) {
	w := make([]float64, len(sigma))
	for i, s := range sigma {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: uncertainty[%d]=%g must be positive", ErrInvalidParameter, i, s)
		}
		w[i] = 1 / (s * s)
	}
	return w, nil
}
