package eql

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoordinates_CopiesInput(t *testing.T) {
	e := []float64{1, 2}
	n := []float64{3, 4}
	u := []float64{5, 6}

	c, err := NewCoordinates(e, n, u)
	require.NoError(t, err)

	e[0] = 100
	assert.Equal(t, 1.0, c.Easting[0], "coordinates must not alias caller slices")
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, Point{Easting: 2, Northing: 4, Upward: 6}, c.At(1))
}

func TestNewCoordinates_ShapeMismatch(t *testing.T) {
	_, err := NewCoordinates([]float64{1, 2}, []float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNewCoordinates_NotFinite(t *testing.T) {
	_, err := NewCoordinates([]float64{1}, []float64{math.NaN()}, []float64{0})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), "northing[0]")

	_, err = NewCoordinates([]float64{1}, []float64{0}, []float64{math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCoordinatesAt_Broadcasts(t *testing.T) {
	c, err := CoordinatesAt([]float64{0, 1, 2}, []float64{5, 5, 5}, 500)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{500, 500, 500}, c.Upward); diff != "" {
		t.Errorf("upward mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinates_Region(t *testing.T) {
	c := CoordinatesFromPoints([]Point{{-5, 10, 0}, {20, -3, 1}, {7, 4, 2}})
	assert.Equal(t, Region{West: -5, East: 20, South: -3, North: 10}, c.Region())
	assert.Equal(t, Region{}, Coordinates{}.Region())
}

func TestNewObservations(t *testing.T) {
	coords := CoordinatesFromPoints([]Point{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})

	tests := []struct {
		name    string
		data    []float64
		weights []float64
		wantErr error
	}{
		{"valid", []float64{1, 2, 3}, nil, nil},
		{"valid weights", []float64{1, 2, 3}, []float64{1, 0, 2}, nil},
		{"short data", []float64{1, 2}, nil, ErrShapeMismatch},
		{"short weights", []float64{1, 2, 3}, []float64{1}, ErrShapeMismatch},
		{"negative weight", []float64{1, 2, 3}, []float64{1, -1, 1}, ErrInvalidParameter},
		{"all zero weights", []float64{1, 2, 3}, []float64{0, 0, 0}, ErrInvalidParameter},
		{"nan data", []float64{1, math.NaN(), 3}, nil, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := NewObservations(coords, tt.data, tt.weights)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, obs.Len())
		})
	}
}

func TestNewObservations_Empty(t *testing.T) {
	_, err := NewObservations(Coordinates{}, nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNewObservations_DuplicateCoordinates(t *testing.T) {
	coords := CoordinatesFromPoints([]Point{{0, 0, 10}, {1, 1, 10}, {0, 0, 10}})
	_, err := NewObservations(coords, []float64{1, 2, 3}, nil)
	require.ErrorIs(t, err, ErrDegenerateData)
	assert.Contains(t, err.Error(), "observations 0 and 2")
}

func TestWeightsFromUncertainty(t *testing.T) {
	w, err := WeightsFromUncertainty([]float64{1, 2, 0.5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0.25, 4}, w, 1e-15)

	_, err = WeightsFromUncertainty([]float64{1, 0})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRegion_Validate(t *testing.T) {
	assert.NoError(t, Region{0, 10, 0, 5}.Validate())
	assert.NoError(t, Region{3, 3, 1, 1}.Validate())
	assert.ErrorIs(t, Region{10, 0, 0, 5}.Validate(), ErrInvalidParameter)
	assert.ErrorIs(t, Region{0, 10, 5, 0}.Validate(), ErrInvalidParameter)
	assert.ErrorIs(t, Region{0, math.NaN(), 0, 1}.Validate(), ErrInvalidParameter)
}

func TestRegion_PadContains(t *testing.T) {
	r := Region{0, 10, 0, 5}.Pad(1)
	assert.Equal(t, Region{-1, 11, -1, 6}, r)
	assert.True(t, r.Contains(-1, 6))
	assert.False(t, r.Contains(12, 0))
	assert.Equal(t, "[-1, 11, -1, 6]", r.String())
}
