package eql

import (
	"fmt"
	"math"
)

// Kernel names accepted by KernelByName and the config file.
const (
	KernelHarmonic = "harmonic"
	KernelGravity  = "gravity"
	KernelDipole   = "dipole"
)

// Kernel is the Green's function giving the field of a unit-coefficient
// source at an evaluation point. Physical constants are left out; they are
// absorbed into the fitted coefficients.
type Kernel interface {
	Name() string
	Eval(source, point Point) (float64, error)
}

// separation returns the distance between source and point and the upward
// offset of the point above the source. r == 0 is ErrSingularKernel.
func separation(source, point Point) (r, du float64, err error) {
	de := point.Easting - source.Easting
	dn := point.Northing - source.Northing
	du = point.Upward - source.Upward
	r = math.Sqrt(de*de + dn*dn + du*du)
	if r == 0 {
		return 0, 0, fmt.Errorf("%w: evaluation point (%g, %g, %g) coincides with a source",
			ErrSingularKernel, point.Easting, point.Northing, point.Upward)
	}
	return r, du, nil
}

// HarmonicKernel is 1/r, the potential of a point mass or monopole.
type HarmonicKernel struct{}

func (HarmonicKernel) Name() string { return KernelHarmonic }

func (HarmonicKernel) Eval(source, point Point) (float64, error) {
	r, _, err := separation(source, point)
	if err != nil {
		return 0, err
	}
	return 1 / r, nil
}

// GravityKernel is Δu/r³, the downward attraction of a unit point mass
// placed below the evaluation point.
type GravityKernel struct{}

func (GravityKernel) Name() string { return KernelGravity }

func (GravityKernel) Eval(source, point Point) (float64, error) {
	r, du, err := separation(source, point)
	if err != nil {
		return 0, err
	}
	return du / (r * r * r), nil
}

// DipoleKernel is (3Δu² − r²)/r⁵, the vertical field component of a
// vertically magnetised dipole.
type DipoleKernel struct{}

func (DipoleKernel) Name() string { return KernelDipole }

func (DipoleKernel) Eval(source, point Point) (float64, error) {
	r, du, err := separation(source, point)
	if err != nil {
		return 0, err
	}
	r2 := r * r
	return (3*du*du - r2) / (r2 * r2 * r), nil
}

// KernelByName resolves a kernel name; the empty name is the harmonic kernel.
func KernelByName(name string) (Kernel, error) {
	switch name {
	case "", KernelHarmonic:
		return HarmonicKernel{}, nil
	case KernelGravity:
		return GravityKernel{}, nil
	case KernelDipole:
		return DipoleKernel{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kernel %q", ErrInvalidParameter, name)
	}
}
