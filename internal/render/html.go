package render

import (
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/eqlayer/internal/eql"
	"github.com/banshee-data/eqlayer/internal/fsutil"
)

// Diverging blue-white-red ramp for the visual map.
var divergingColors = []string{"#3b4cc0", "#6f92f3", "#aac7fd", "#dddcdc", "#f7b89c", "#e7745b", "#b40426"}

func scatterChart(title, subtitle string, data []opts.ScatterData, limit float64, symbolSize int) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "800px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Easting", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Northing", NameLocation: "middle", NameGap: 40, Scale: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(-limit),
			Max:        float32(limit),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: divergingColors},
		}),
	)
	scatter.AddSeries(title, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: symbolSize}))
	return scatter
}

// ReportPage builds an HTML page with the observations next to the named
// grid field, both on the same symmetric colour scale.
func ReportPage(obs eql.Observations, g *eql.GridResult, field string) (*components.Page, error) {
	f, ok := g.Field(field)
	if !ok {
		return nil, fmt.Errorf("grid has no field %q (have %v)", field, g.Names())
	}

	observed := make([]opts.ScatterData, obs.Len())
	for i := range observed {
		observed[i] = opts.ScatterData{Value: []interface{}{obs.Coordinates.Easting[i], obs.Coordinates.Northing[i], obs.Data[i]}}
	}
	rows, cols := g.Dims()
	gridded := make([]opts.ScatterData, 0, rows*cols)
	for i, n := range g.Northing {
		for j, e := range g.Easting {
			gridded = append(gridded, opts.ScatterData{Value: []interface{}{e, n, f.Values.At(i, j)}})
		}
	}

	limit := symmetricLimit(obs.Data)
	if l := symmetricLimit(f.Values.RawMatrix().Data); l > limit {
		limit = l
	}

	page := components.NewPage()
	page.PageTitle = "Equivalent layer report"
	page.AddCharts(
		scatterChart("Observations", fmt.Sprintf("n=%d", obs.Len()), observed, limit, 6),
		scatterChart(f.Name, fmt.Sprintf("fit=%s %d×%d upward=%g damping=%g",
			g.Attrs.LayerID, rows, cols, f.Upward, g.Attrs.Damping), gridded, limit, 4),
	)
	return page, nil
}

// WriteReportHTML renders ReportPage to a file on fsys.
func WriteReportHTML(fsys fsutil.FileSystem, path string, obs eql.Observations, g *eql.GridResult, field string) error {
	page, err := ReportPage(obs, g, field)
	if err != nil {
		return err
	}
	out, err := fsutil.CreateAll(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := page.Render(out); err != nil {
		out.Close()
		return fmt.Errorf("render error: %w", err)
	}
	return out.Close()
}
