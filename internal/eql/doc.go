// Package eql owns the equivalent-layer estimator.
//
// Responsibilities: source placement, the forward (Green's function)
// operator, the damped least-squares fit, and the prediction, scoring,
// profile and gridding operations built on a fitted layer.
// Key types: Estimator, Layer, Coordinates, Observations, GridResult.
//
// Matrix orientation: every kernel matrix is K×M, one row per evaluation
// point and one column per source. The training design matrix is N×M.
//
// Dependency rule: no file, database or network IO is allowed in this
// package. Callers hand in coordinate and value arrays.
package eql
