package eql

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// minRowsPerWorker keeps small problems on a single goroutine.
const minRowsPerWorker = 64

// Jacobian builds the K×M kernel matrix between M sources and K evaluation
// points. workers <= 0 uses GOMAXPROCS. Every element depends only on its
// own (source, point) pair, so the result does not depend on workers.
func Jacobian(sources, points Coordinates, k Kernel, workers int) (*mat.Dense, error) {
	if err := sources.validate(); err != nil {
		return nil, err
	}
	if err := points.validate(); err != nil {
		return nil, err
	}
	rows, cols := points.Len(), sources.Len()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: kernel matrix needs points and sources, got %d×%d", ErrShapeMismatch, rows, cols)
	}
	if k == nil {
		k = HarmonicKernel{}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if limit := (rows + minRowsPerWorker - 1) / minRowsPerWorker; workers > limit {
		workers = limit
	}

	src := make([]Point, cols)
	for j := range src {
		src[j] = sources.At(j)
	}

	data := make([]float64, rows*cols)
	chunk := (rows + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < rows; start += chunk {
		lo, hi := start, start+chunk
		if hi > rows {
			hi = rows
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				p := points.At(i)
				row := data[i*cols : (i+1)*cols]
				for j, s := range src {
					v, err := k.Eval(s, p)
					if err != nil {
						return fmt.Errorf("point %d, source %d: %w", i, j, err)
					}
					row[j] = v
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	tracef("kernel %s: built %d×%d matrix with %d workers", k.Name(), rows, cols, workers)
	return mat.NewDense(rows, cols, data), nil
}
