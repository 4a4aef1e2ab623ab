package eql

import (
	"fmt"
	"math"
)

// Region is a horizontal bounding box: West <= East, South <= North.
type Region struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	South float64 `json:"south"`
	North float64 `json:"north"`
}

// Validate checks the region is finite and correctly ordered.
func (r Region) Validate() error {
	for _, v := range []float64{r.West, r.East, r.South, r.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: region %v is not finite", ErrInvalidParameter, r)
		}
	}
	if r.West > r.East {
		return fmt.Errorf("%w: region west %g > east %g", ErrInvalidParameter, r.West, r.East)
	}
	if r.South > r.North {
		return fmt.Errorf("%w: region south %g > north %g", ErrInvalidParameter, r.South, r.North)
	}
	return nil
}

// Pad returns the region grown by pad on every side.
func (r Region) Pad(pad float64) Region {
	return Region{West: r.West - pad, East: r.East + pad, South: r.South - pad, North: r.North + pad}
}

// Contains reports whether the horizontal position lies inside the region.
func (r Region) Contains(easting, northing float64) bool {
	return easting >= r.West && easting <= r.East && northing >= r.South && northing <= r.North
}

func (r Region) String() string {
	return fmt.Sprintf("[%g, %g, %g, %g]", r.West, r.East, r.South, r.North)
}
