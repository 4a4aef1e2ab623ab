package eql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelativeDepthLayout(t *testing.T) {
	obs := CoordinatesFromPoints([]Point{{0, 0, 100}, {10, 5, 250}})

	src, err := RelativeDepthLayout{}.Positions(obs, 1000)
	require.NoError(t, err)

	assert.Equal(t, obs.Easting, src.Easting)
	assert.Equal(t, obs.Northing, src.Northing)
	assert.Equal(t, []float64{-900, -750}, src.Upward)
	// The input is untouched.
	assert.Equal(t, []float64{100, 250}, obs.Upward)
}

func TestLayouts_RejectNonPositiveDepth(t *testing.T) {
	obs := CoordinatesFromPoints([]Point{{0, 0, 0}})
	policies := []LayoutPolicy{RelativeDepthLayout{}, ConstantDepthLayout{}, BlockAveragedLayout{BlockSize: 10}}

	for _, p := range policies {
		for _, depth := range []float64{0, -1} {
			_, err := p.Positions(obs, depth)
			assert.ErrorIs(t, err, ErrInvalidParameter, "%s depth=%g", p.Name(), depth)
		}
	}
}

func TestConstantDepthLayout(t *testing.T) {
	obs := CoordinatesFromPoints([]Point{{0, 0, 100}, {10, 5, 250}, {3, 3, 180}})

	src, err := ConstantDepthLayout{}.Positions(obs, 50)
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 50, 50}, src.Upward)
	assert.Equal(t, obs.Easting, src.Easting)
}

func TestBlockAveragedLayout(t *testing.T) {
	obs := CoordinatesFromPoints([]Point{
		{0, 0, 10}, {2, 2, 30}, // block (0,0)
		{12, 1, 20}, // block (0,1)
		{1, 15, 40}, {3, 17, 60}, // block (1,0)
	})

	src, err := BlockAveragedLayout{BlockSize: 10}.Positions(obs, 5)
	require.NoError(t, err)
	require.Equal(t, 3, src.Len())

	// Row-major block order.
	assert.Equal(t, Point{Easting: 1, Northing: 1, Upward: 15}, src.At(0))
	assert.Equal(t, Point{Easting: 12, Northing: 1, Upward: 15}, src.At(1))
	assert.Equal(t, Point{Easting: 2, Northing: 16, Upward: 45}, src.At(2))
}

func TestBlockAveragedLayout_InvalidBlockSize(t *testing.T) {
	obs := CoordinatesFromPoints([]Point{{0, 0, 0}})
	_, err := BlockAveragedLayout{}.Positions(obs, 5)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestLayoutByName(t *testing.T) {
	tests := []struct {
		name      string
		blockSize float64
		want      string
		wantErr   bool
	}{
		{"", 0, LayoutRelativeDepth, false},
		{LayoutRelativeDepth, 0, LayoutRelativeDepth, false},
		{LayoutConstantDepth, 0, LayoutConstantDepth, false},
		{LayoutBlockAveraged, 100, LayoutBlockAveraged, false},
		{LayoutBlockAveraged, 0, "", true},
		{"spiral", 0, "", true},
	}
	for _, tt := range tests {
		p, err := LayoutByName(tt.name, tt.blockSize)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidParameter, tt.name)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Name())
	}
}
