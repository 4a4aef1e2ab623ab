package eql

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Layout policy names accepted by LayoutByName and the config file.
const (
	LayoutRelativeDepth = "relative-depth"
	LayoutConstantDepth = "constant-depth"
	LayoutBlockAveraged = "block-averaged"
)

// LayoutPolicy places the point sources of an equivalent layer.
type LayoutPolicy interface {
	// Name identifies the policy in provenance metadata.
	Name() string
	// Positions returns the source coordinates for the given observations.
	Positions(obs Coordinates, relativeDepth float64) (Coordinates, error)
}

func checkRelativeDepth(relativeDepth float64) error {
	if !(relativeDepth > 0) || math.IsInf(relativeDepth, 0) {
		return fmt.Errorf("%w: relative depth must be positive, got %g", ErrInvalidParameter, relativeDepth)
	}
	return nil
}

// RelativeDepthLayout puts one source beneath each observation at a
// constant depth below that observation.
type RelativeDepthLayout struct{}

func (RelativeDepthLayout) Name() string { return LayoutRelativeDepth }

func (RelativeDepthLayout) Positions(obs Coordinates, relativeDepth float64) (Coordinates, error) {
	if err := checkRelativeDepth(relativeDepth); err != nil {
		return Coordinates{}, err
	}
	src := obs.clone()
	for i := range src.Upward {
		src.Upward[i] -= relativeDepth
	}
	return src, nil
}

// ConstantDepthLayout puts one source beneath each observation, all at
// relativeDepth below the lowest observation.
type ConstantDepthLayout struct{}

func (ConstantDepthLayout) Name() string { return LayoutConstantDepth }

func (ConstantDepthLayout) Positions(obs Coordinates, relativeDepth float64) (Coordinates, error) {
	if err := checkRelativeDepth(relativeDepth); err != nil {
		return Coordinates{}, err
	}
	if obs.Len() == 0 {
		return Coordinates{}, nil
	}
	src := obs.clone()
	level := floats.Min(obs.Upward) - relativeDepth
	for i := range src.Upward {
		src.Upward[i] = level
	}
	return src, nil
}

// BlockAveragedLayout puts one source per non-empty square block of the
// horizontal plane, at the mean position of the observations in the block.
// It gives fewer sources than observations for dense surveys.
type BlockAveragedLayout struct {
	BlockSize float64
}

func (BlockAveragedLayout) Name() string { return LayoutBlockAveraged }

type blockKey struct{ row, col int64 }

func (l BlockAveragedLayout) Positions(obs Coordinates, relativeDepth float64) (Coordinates, error) {
	if err := checkRelativeDepth(relativeDepth); err != nil {
		return Coordinates{}, err
	}
	if !(l.BlockSize > 0) || math.IsInf(l.BlockSize, 0) {
		return Coordinates{}, fmt.Errorf("%w: block size must be positive, got %g", ErrInvalidParameter, l.BlockSize)
	}
	if obs.Len() == 0 {
		return Coordinates{}, nil
	}

	region := obs.Region()
	members := make(map[blockKey][]int)
	for i := 0; i < obs.Len(); i++ {
		k := blockKey{
			row: int64(math.Floor((obs.Northing[i] - region.South) / l.BlockSize)),
			col: int64(math.Floor((obs.Easting[i] - region.West) / l.BlockSize)),
		}
		members[k] = append(members[k], i)
	}

	keys := make([]blockKey, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].row != keys[b].row {
			return keys[a].row < keys[b].row
		}
		return keys[a].col < keys[b].col
	})

	src := Coordinates{
		Easting:  make([]float64, len(keys)),
		Northing: make([]float64, len(keys)),
		Upward:   make([]float64, len(keys)),
	}
	e := make([]float64, 0, obs.Len())
	n := make([]float64, 0, obs.Len())
	u := make([]float64, 0, obs.Len())
	for j, k := range keys {
		e, n, u = e[:0], n[:0], u[:0]
		for _, i := range members[k] {
			e = append(e, obs.Easting[i])
			n = append(n, obs.Northing[i])
			u = append(u, obs.Upward[i])
		}
		src.Easting[j] = stat.Mean(e, nil)
		src.Northing[j] = stat.Mean(n, nil)
		src.Upward[j] = stat.Mean(u, nil) - relativeDepth
	}
	return src, nil
}

// LayoutByName resolves a policy name. blockSize is only used by the
// block-averaged policy.
func LayoutByName(name string, blockSize float64) (LayoutPolicy, error) {
	switch name {
	case "", LayoutRelativeDepth:
		return RelativeDepthLayout{}, nil
	case LayoutConstantDepth:
		return ConstantDepthLayout{}, nil
	case LayoutBlockAveraged:
		if !(blockSize > 0) {
			return nil, fmt.Errorf("%w: %s layout needs a positive block size, got %g", ErrInvalidParameter, name, blockSize)
		}
		return BlockAveragedLayout{BlockSize: blockSize}, nil
	default:
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalidParameter, name)
	}
}
