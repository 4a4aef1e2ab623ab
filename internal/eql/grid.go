package eql

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultDataName names the output field when the caller gives no names.
const DefaultDataName = "scalars"

// MaxGridNodes caps the nodes of one grid field.
const MaxGridNodes = 1 << 24

// Adjust selects what gives way when the region is not a whole number of
// spacings wide.
type Adjust int

const (
	// AdjustSpacing keeps the region and shrinks or stretches the spacing.
	AdjustSpacing Adjust = iota
	// AdjustRegion keeps the spacing and extends the region east and north.
	AdjustRegion
)

func (a Adjust) String() string {
	switch a {
	case AdjustSpacing:
		return "spacing"
	case AdjustRegion:
		return "region"
	default:
		return fmt.Sprintf("Adjust(%d)", int(a))
	}
}

// GridRequest describes a regular horizontal grid and the upward levels to
// evaluate it at. Exactly one of Spacing or Shape must be set.
type GridRequest struct {
	Spacing float64 // same spacing along both axes
	Shape   [2]int  // number of points along (northing, easting)
	Region  *Region // nil means the training bounding box
	Adjust  Adjust

	// Upward holds one level per output field. Empty means a single field
	// at the mean training upward.
	Upward []float64
	// DataNames names the output fields, one per Upward level. Nil gives
	// "scalars", or "scalars_1".."scalars_k" for several levels.
	DataNames []string
}

// GridField is one named output of a grid.
type GridField struct {
	Name   string
	Upward float64
	Values *mat.Dense // rows follow Northing, columns follow Easting
}

// GridAttrs records the provenance of a grid.
type GridAttrs struct {
	LayerID       string     `json:"layer_id"`
	Kernel        string     `json:"kernel"`
	Layout        string     `json:"layout"`
	RelativeDepth float64    `json:"relative_depth"`
	Damping       float64    `json:"damping"`
	Region        Region     `json:"region"`
	Spacing       [2]float64 `json:"spacing"` // (northing, easting)
}

// GridResult is a labelled set of 2D fields sharing the same horizontal
// axes. It must be treated as read-only once returned.
type GridResult struct {
	Easting  []float64
	Northing []float64
	Fields   []GridField
	Attrs    GridAttrs
}

// Dims returns the number of rows (northing) and columns (easting).
func (g *GridResult) Dims() (rows, cols int) {
	return len(g.Northing), len(g.Easting)
}

// Field looks up an output field by name.
func (g *GridResult) Field(name string) (*GridField, bool) {
	for i := range g.Fields {
		if g.Fields[i].Name == name {
			return &g.Fields[i], true
		}
	}
	return nil, false
}

// Names returns the output field names in request order.
func (g *GridResult) Names() []string {
	names := make([]string, len(g.Fields))
	for i, f := range g.Fields {
		names[i] = f.Name
	}
	return names
}

// Coordinates flattens the grid nodes row-major at the given upward level.
func (g *GridResult) Coordinates(upward float64) Coordinates {
	e, n := meshgrid(g.Easting, g.Northing)
	c, _ := CoordinatesAt(e, n, upward)
	return c
}

// Grid evaluates the layer on a regular horizontal grid, once per requested
// upward level.
func (l *Layer) Grid(req GridRequest) (*GridResult, error) {
	if l == nil {
		return nil, notFitted()
	}

	region := l.region
	if req.Region != nil {
		region = *req.Region
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}

	levels := req.Upward
	if len(levels) == 0 {
		levels = []float64{l.meanUpward}
	}
	for i, h := range levels {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return nil, fmt.Errorf("%w: upward[%d] is not finite", ErrInvalidParameter, i)
		}
	}
	names, err := gridNames(req.DataNames, len(levels))
	if err != nil {
		return nil, err
	}

	easting, northing, spacing, region, err := gridAxes(req, region)
	if err != nil {
		return nil, err
	}

	rows, cols := len(northing), len(easting)
	e, n := meshgrid(easting, northing)
	fields := make([]GridField, len(levels))
	for f, h := range levels {
		coords, err := CoordinatesAt(e, n, h)
		if err != nil {
			return nil, err
		}
		values, err := l.Predict(coords)
		if err != nil {
			return nil, err
		}
		fields[f] = GridField{Name: names[f], Upward: h, Values: mat.NewDense(rows, cols, values)}
	}
	l.metrics.AddGridCells(rows * cols * len(levels))
	tracef("grid %s: %d×%d nodes, %d fields, spacing %v", l.id, rows, cols, len(levels), spacing)

	return &GridResult{
		Easting:  easting,
		Northing: northing,
		Fields:   fields,
		Attrs: GridAttrs{
			LayerID:       l.id.String(),
			Kernel:        l.kernel.Name(),
			Layout:        l.layout,
			RelativeDepth: l.relativeDepth,
			Damping:       l.damping,
			Region:        region,
			Spacing:       spacing,
		},
	}, nil
}

func gridNames(names []string, k int) ([]string, error) {
	if names == nil {
		if k == 1 {
			return []string{DefaultDataName}, nil
		}
		out := make([]string, k)
		for i := range out {
			out[i] = fmt.Sprintf("%s_%d", DefaultDataName, i+1)
		}
		return out, nil
	}
	if len(names) != k {
		return nil, fmt.Errorf("%w: %d data names for %d output fields", ErrShapeMismatch, len(names), k)
	}
	seen := make(map[string]bool, k)
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: empty data name", ErrInvalidParameter)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate data name %q", ErrInvalidParameter, name)
		}
		seen[name] = true
	}
	return append([]string(nil), names...), nil
}

// gridAxes resolves spacing or shape into the easting and northing axes.
// The returned region is the one actually covered: AdjustRegion extends it,
// and an axis with a single node collapses onto its lower bound.
func gridAxes(req GridRequest, region Region) (easting, northing []float64, spacing [2]float64, covered Region, err error) {
	hasSpacing := req.Spacing != 0
	hasShape := req.Shape != [2]int{}
	if hasSpacing == hasShape {
		return nil, nil, spacing, region, fmt.Errorf("%w: exactly one of spacing or shape must be given", ErrInvalidParameter)
	}
	if req.Adjust != AdjustSpacing && req.Adjust != AdjustRegion {
		return nil, nil, spacing, region, fmt.Errorf("%w: unknown adjust mode %v", ErrInvalidParameter, req.Adjust)
	}

	covered = region
	if hasShape {
		rows, cols := req.Shape[0], req.Shape[1]
		if rows < 1 || cols < 1 {
			return nil, nil, spacing, region, fmt.Errorf("%w: grid shape must be positive, got %v", ErrInvalidParameter, req.Shape)
		}
		if rows > MaxGridNodes/cols {
			return nil, nil, spacing, region, fmt.Errorf("%w: grid shape %v exceeds %d nodes", ErrInvalidParameter, req.Shape, MaxGridNodes)
		}
		northing, spacing[0] = linspace(region.South, region.North, rows)
		easting, spacing[1] = linspace(region.West, region.East, cols)
		if rows == 1 {
			covered.North = covered.South
		}
		if cols == 1 {
			covered.East = covered.West
		}
		return easting, northing, spacing, covered, nil
	}

	if !(req.Spacing > 0) || math.IsInf(req.Spacing, 0) {
		return nil, nil, spacing, region, fmt.Errorf("%w: grid spacing must be positive, got %g", ErrInvalidParameter, req.Spacing)
	}
	rows, north, err := axisCount(region.South, region.North, req.Spacing, req.Adjust)
	if err != nil {
		return nil, nil, spacing, region, err
	}
	cols, east, err := axisCount(region.West, region.East, req.Spacing, req.Adjust)
	if err != nil {
		return nil, nil, spacing, region, err
	}
	if rows > MaxGridNodes/cols {
		return nil, nil, spacing, region, fmt.Errorf("%w: spacing %g gives %d×%d nodes, more than %d",
			ErrInvalidParameter, req.Spacing, rows, cols, MaxGridNodes)
	}
	covered.North, covered.East = north, east
	northing, spacing[0] = linspace(covered.South, covered.North, rows)
	easting, spacing[1] = linspace(covered.West, covered.East, cols)
	if rows == 1 {
		spacing[0] = req.Spacing
		covered.North = covered.South
	}
	if cols == 1 {
		spacing[1] = req.Spacing
		covered.East = covered.West
	}
	return easting, northing, spacing, covered, nil
}

// axisCount returns the number of nodes along [lo, hi] and the upper bound
// actually used.
func axisCount(lo, hi, spacing float64, adjust Adjust) (int, float64, error) {
	extent := hi - lo
	steps := extent / spacing
	if steps > MaxGridNodes {
		return 0, 0, fmt.Errorf("%w: spacing %g over extent %g exceeds %d nodes per axis",
			ErrInvalidParameter, spacing, extent, MaxGridNodes)
	}
	if adjust == AdjustRegion {
		steps = math.Ceil(steps - 1e-9)
		if steps < 0 {
			steps = 0
		}
		return int(steps) + 1, lo + steps*spacing, nil
	}
	return int(math.Round(steps)) + 1, hi, nil
}

// linspace returns n evenly spaced values from lo to hi inclusive and the
// step between them. The last value is exactly hi.
func linspace(lo, hi float64, n int) ([]float64, float64) {
	if n == 1 {
		return []float64{lo}, 0
	}
	step := (hi - lo) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out, step
}

// meshgrid flattens two axes row-major: northing varies slowest.
func meshgrid(easting, northing []float64) (e, n []float64) {
	rows, cols := len(northing), len(easting)
	e = make([]float64, rows*cols)
	n = make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			e[i*cols+j] = easting[j]
			n[i*cols+j] = northing[i]
		}
	}
	return e, n
}
