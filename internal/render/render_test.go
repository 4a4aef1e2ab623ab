package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eqlayer/internal/eql"
	"github.com/banshee-data/eqlayer/internal/fsutil"
)

func testGrid(t *testing.T, req eql.GridRequest) (eql.Observations, *eql.GridResult) {
	t.Helper()
	var pts []eql.Point
	var data []float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			pts = append(pts, eql.Point{Easting: float64(j) * 50, Northing: float64(i) * 50, Upward: 5})
			data = append(data, float64(i-j)+0.25*float64(i*j))
		}
	}
	obs, err := eql.NewObservations(eql.CoordinatesFromPoints(pts), data, nil)
	require.NoError(t, err)
	e, err := eql.NewEstimator(eql.DefaultConfig().WithRelativeDepth(60).WithDamping(1e-6))
	require.NoError(t, err)
	layer, err := e.Fit(obs)
	require.NoError(t, err)
	g, err := layer.Grid(req)
	require.NoError(t, err)
	return obs, g
}

func TestWriteGridPNG(t *testing.T) {
	obs, g := testGrid(t, eql.GridRequest{Spacing: 10})
	fsys := fsutil.NewMemoryFileSystem()

	require.NoError(t, WriteGridPNG(fsys, "grid.png", g, eql.DefaultDataName, &obs.Coordinates))
	data, err := fsys.ReadFile("grid.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")), "PNG signature")
}

func TestGridPlot_Errors(t *testing.T) {
	_, g := testGrid(t, eql.GridRequest{Spacing: 10})
	_, err := GridPlot(g, "missing", nil)
	assert.ErrorContains(t, err, `no field "missing"`)

	_, thin := testGrid(t, eql.GridRequest{Shape: [2]int{1, 5}})
	_, err = GridPlot(thin, eql.DefaultDataName, nil)
	assert.ErrorContains(t, err, "at least 2×2")
}

func TestFieldGrid(t *testing.T) {
	_, g := testGrid(t, eql.GridRequest{Shape: [2]int{3, 4}})
	f := g.Fields[0]
	fg := fieldGrid{easting: g.Easting, northing: g.Northing, values: f.Values}

	c, r := fg.Dims()
	assert.Equal(t, 4, c)
	assert.Equal(t, 3, r)
	assert.Equal(t, f.Values.At(2, 1), fg.Z(1, 2))
	assert.Equal(t, g.Easting[3], fg.X(3))
	assert.Equal(t, g.Northing[2], fg.Y(2))
}

func TestSymmetricLimit(t *testing.T) {
	assert.Equal(t, 5.0, symmetricLimit([]float64{-5, 2, 3}))
	assert.Equal(t, 7.0, symmetricLimit([]float64{-1, 7}))
	assert.Equal(t, 1.0, symmetricLimit([]float64{0, 0}))
	assert.Equal(t, 1.0, symmetricLimit(nil))
}

func TestWriteReportHTML(t *testing.T) {
	obs, g := testGrid(t, eql.GridRequest{Spacing: 25, DataNames: []string{"tfa"}})
	fsys := fsutil.NewMemoryFileSystem()

	require.NoError(t, WriteReportHTML(fsys, "report.html", obs, g, "tfa"))
	data, err := fsys.ReadFile("report.html")
	require.NoError(t, err)
	html := string(data)
	assert.True(t, strings.Contains(html, "echarts"))
	assert.Contains(t, html, "Observations")
	assert.Contains(t, html, "tfa")
	assert.Contains(t, html, g.Attrs.LayerID)

	assert.Error(t, WriteReportHTML(fsys, "bad.html", obs, g, "missing"))
}
