package sampler

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// FindMAP computes a maximum-a-posteriori point for the target by
// derivative-free minimization of the negative log-density, starting from
// the given point (zeros when nil). The graph back end uses this as an
// optional sampler starting point.
func FindMAP(target *Target, start Point) (Point, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			lp := target.LogProb(target.Unflatten(x))
			if math.IsNaN(lp) {
				return math.Inf(1)
			}
			return -lp
		},
	}

	x0 := target.Flatten(start)
	result, err := optimize.Minimize(problem, x0, &optimize.Settings{}, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("sampler: MAP optimization failed: %w", err)
	}
	return target.Unflatten(result.X), nil
}
