package eql

import "errors"

var (
	// ErrInvalidParameter reports bad configuration or request values.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrSingularKernel reports an evaluation point coinciding with a source.
	ErrSingularKernel = errors.New("singular kernel")
	// ErrIllConditioned reports a normal-equations system that cannot be
	// solved within the configured condition limit.
	ErrIllConditioned = errors.New("ill-conditioned system")
	// ErrNotFitted is returned when prediction is requested before a fit.
	ErrNotFitted = errors.New("layer not fitted")
	// ErrDegenerateData reports data that breaks a statistic or the kernel.
	ErrDegenerateData = errors.New("degenerate data")
	// ErrShapeMismatch reports inconsistent array lengths.
	ErrShapeMismatch = errors.New("shape mismatch")
)
