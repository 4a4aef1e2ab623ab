package eql

import (
	"fmt"
	"math"
)

// ProfileRequest describes a straight horizontal line from Start to End,
// both given as (easting, northing), sampled at Size points.
type ProfileRequest struct {
	Start  [2]float64
	End    [2]float64
	Size   int
	Upward float64
}

// Profile holds layer values sampled along a line.
type Profile struct {
	Easting  []float64
	Northing []float64
	Upward   float64
	Distance []float64 // from Start along the line
	Values   []float64
}

// Profile evaluates the layer at Size equally spaced points on a line.
func (l *Layer) Profile(req ProfileRequest) (*Profile, error) {
	if l == nil {
		return nil, notFitted()
	}
	if req.Size < 2 {
		return nil, fmt.Errorf("%w: profile size must be at least 2, got %d", ErrInvalidParameter, req.Size)
	}
	for _, v := range []float64{req.Start[0], req.Start[1], req.End[0], req.End[1], req.Upward} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: profile endpoints and upward must be finite", ErrInvalidParameter)
		}
	}
	if req.Start == req.End {
		return nil, fmt.Errorf("%w: profile start and end coincide", ErrInvalidParameter)
	}

	easting, _ := linspace(req.Start[0], req.End[0], req.Size)
	northing, _ := linspace(req.Start[1], req.End[1], req.Size)
	length := math.Hypot(req.End[0]-req.Start[0], req.End[1]-req.Start[1])
	distance, _ := linspace(0, length, req.Size)

	coords, err := CoordinatesAt(easting, northing, req.Upward)
	if err != nil {
		return nil, err
	}
	values, err := l.Predict(coords)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Easting:  easting,
		Northing: northing,
		Upward:   req.Upward,
		Distance: distance,
		Values:   values,
	}, nil
}
