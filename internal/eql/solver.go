package eql

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Diagnostics summarises a least-squares solve.
type Diagnostics struct {
	Observations int     `json:"observations"`
	Sources      int     `json:"sources"`
	Condition    float64 `json:"condition"`     // condition estimate of the damped normal matrix
	ResidualNorm float64 `json:"residual_norm"` // ‖A c − d‖₂, unweighted
}

// Solution is the output of a Solver.
type Solution struct {
	Coefficients []float64
	Diagnostics  Diagnostics
}

// Solver fits source coefficients c minimising
// Σ wᵢ (A c − d)ᵢ² + damping ‖c‖². Weights may be nil for unit weights.
type Solver interface {
	Solve(a *mat.Dense, data, weights []float64, damping float64) (Solution, error)
}

// CholeskySolver solves the damped normal equations (AᵀWA + λI) c = AᵀWd
// with a Cholesky factorisation.
type CholeskySolver struct {
	// MaxCondition bounds the accepted condition estimate of the normal
	// matrix. Zero means mat.ConditionTolerance.
	MaxCondition float64
}

func (s CholeskySolver) Solve(a *mat.Dense, data, weights []float64, damping float64) (Solution, error) {
	if a == nil {
		return Solution{}, fmt.Errorf("%w: nil design matrix", ErrShapeMismatch)
	}
	n, m := a.Dims()
	if len(data) != n {
		return Solution{}, fmt.Errorf("%w: design matrix has %d rows but %d data values", ErrShapeMismatch, n, len(data))
	}
	if weights != nil && len(weights) != n {
		return Solution{}, fmt.Errorf("%w: design matrix has %d rows but %d weights", ErrShapeMismatch, n, len(weights))
	}
	if damping < 0 || math.IsNaN(damping) || math.IsInf(damping, 0) {
		return Solution{}, fmt.Errorf("%w: damping must be finite and non-negative, got %g", ErrInvalidParameter, damping)
	}
	maxCond := s.MaxCondition
	if maxCond <= 0 {
		maxCond = mat.ConditionTolerance
	}

	aw := a
	dw := data
	if weights != nil {
		var scaled mat.Dense
		scaled.CloneFrom(a)
		dw = make([]float64, n)
		for i := 0; i < n; i++ {
			sw := math.Sqrt(weights[i])
			floats.Scale(sw, scaled.RawRowView(i))
			dw[i] = sw * data[i]
		}
		aw = &scaled
	}

	var normal mat.SymDense
	normal.SymOuterK(1, aw.T())
	for i := 0; i < m; i++ {
		normal.SetSym(i, i, normal.At(i, i)+damping)
	}
	rhs := mat.NewVecDense(m, nil)
	rhs.MulVec(aw.T(), mat.NewVecDense(n, dw))

	var chol mat.Cholesky
	if ok := chol.Factorize(&normal); !ok {
		return Solution{}, fmt.Errorf("%w: normal equations are not positive definite (damping %g)", ErrIllConditioned, damping)
	}
	cond := chol.Cond()
	if cond > maxCond || math.IsNaN(cond) {
		return Solution{}, fmt.Errorf("%w: condition estimate %.3g exceeds %.3g (damping %g)", ErrIllConditioned, cond, maxCond, damping)
	}

	c := mat.NewVecDense(m, nil)
	if err := chol.SolveVecTo(c, rhs); err != nil {
		var ce mat.Condition
		if !errors.As(err, &ce) || float64(ce) > maxCond {
			return Solution{}, fmt.Errorf("%w: %v", ErrIllConditioned, err)
		}
	}

	var pred mat.VecDense
	pred.MulVec(a, c)
	resid := make([]float64, n)
	floats.SubTo(resid, pred.RawVector().Data, data)

	coef := make([]float64, m)
	copy(coef, c.RawVector().Data)
	return Solution{
		Coefficients: coef,
		Diagnostics: Diagnostics{
			Observations: n,
			Sources:      m,
			Condition:    cond,
			ResidualNorm: floats.Norm(resid, 2),
		},
	}, nil
}
