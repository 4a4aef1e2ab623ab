// Package render draws gridded equivalent-layer fields as static PNG heat
// maps and interactive HTML reports.
package render

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/eqlayer/internal/eql"
	"github.com/banshee-data/eqlayer/internal/fsutil"
)

const paletteColors = 255

// Default PNG size.
var (
	PNGWidth  = 8 * vg.Inch
	PNGHeight = 7 * vg.Inch
)

// fieldGrid adapts one grid field to plotter.GridXYZ.
type fieldGrid struct {
	easting, northing []float64
	values            *mat.Dense
}

func (g fieldGrid) Dims() (c, r int)   { return len(g.easting), len(g.northing) }
func (g fieldGrid) Z(c, r int) float64 { return g.values.At(r, c) }
func (g fieldGrid) X(c int) float64    { return g.easting[c] }
func (g fieldGrid) Y(r int) float64    { return g.northing[r] }

// symmetricLimit returns the largest absolute value, so a diverging palette
// is centred on zero. A flat zero field gets a limit of 1.
func symmetricLimit(values []float64) float64 {
	if len(values) == 0 {
		return 1
	}
	limit := math.Max(math.Abs(floats.Min(values)), math.Abs(floats.Max(values)))
	if limit == 0 || math.IsNaN(limit) || math.IsInf(limit, 0) {
		return 1
	}
	return limit
}

// GridPlot builds a heat map of the named field. Observation locations, when
// given, are drawn on top as small points.
func GridPlot(g *eql.GridResult, field string, stations *eql.Coordinates) (*plot.Plot, error) {
	f, ok := g.Field(field)
	if !ok {
		return nil, fmt.Errorf("grid has no field %q (have %v)", field, g.Names())
	}
	rows, cols := g.Dims()
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("heat map needs at least 2×2 nodes, grid is %d×%d", rows, cols)
	}

	limit := symmetricLimit(f.Values.RawMatrix().Data)
	cm := moreland.SmoothBlueRed()
	cm.SetMin(-limit)
	cm.SetMax(limit)

	heat := plotter.NewHeatMap(fieldGrid{easting: g.Easting, northing: g.Northing, values: f.Values}, cm.Palette(paletteColors))
	heat.Min = -limit
	heat.Max = limit

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s at upward %g (%s kernel, depth %g)", f.Name, f.Upward, g.Attrs.Kernel, g.Attrs.RelativeDepth)
	p.X.Label.Text = "Easting"
	p.Y.Label.Text = "Northing"
	p.Add(heat)

	if stations != nil && stations.Len() > 0 {
		pts := make(plotter.XYs, stations.Len())
		for i := range pts {
			pts[i] = plotter.XY{X: stations.Easting[i], Y: stations.Northing[i]}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create station overlay: %w", err)
		}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
	}
	return p, nil
}

// WriteGridPNG renders the named field of g to a PNG file on fsys.
func WriteGridPNG(fsys fsutil.FileSystem, path string, g *eql.GridResult, field string, stations *eql.Coordinates) error {
	p, err := GridPlot(g, field, stations)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PNGWidth, PNGHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}

	out, err := fsutil.CreateAll(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}
