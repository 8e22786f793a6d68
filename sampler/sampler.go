// Package sampler defines the injected sampling capabilities the fawn
// back ends drive, plus reference implementations: a componentwise
// random-walk Metropolis sampler, a mean-field variational fitter, and a
// Nelder-Mead MAP estimator. The back ends only ever talk to the
// interfaces, so models stay testable without a real inference engine.
package sampler

import (
	"context"
	"fmt"
)

// Point maps free-variable names to their current values.
type Point map[string][]float64

// Target is the sampling target compiled by a back end: the free
// variables (stable order, per-variable dimensionality) and the joint
// log-density over them.
type Target struct {
	Names   []string
	Shapes  map[string]int
	LogProb func(Point) float64
}

// Dim returns the total number of scalar coordinates.
func (t *Target) Dim() int {
	n := 0
	for _, name := range t.Names {
		n += t.Shapes[name]
	}
	return n
}

// Flatten packs a point into a single coordinate vector in Names order.
func (t *Target) Flatten(p Point) []float64 {
	x := make([]float64, 0, t.Dim())
	for _, name := range t.Names {
		vals := p[name]
		if vals == nil {
			vals = make([]float64, t.Shapes[name])
		}
		x = append(x, vals...)
	}
	return x
}

// Unflatten unpacks a coordinate vector back into a named point.
func (t *Target) Unflatten(x []float64) Point {
	p := make(Point, len(t.Names))
	i := 0
	for _, name := range t.Names {
		k := t.Shapes[name]
		vals := make([]float64, k)
		copy(vals, x[i:i+k])
		p[name] = vals
		i += k
	}
	return p
}

// Validate checks that a target is well formed.
func (t *Target) Validate() error {
	if t.LogProb == nil {
		return fmt.Errorf("sampler: target has no log-density")
	}
	for _, name := range t.Names {
		if t.Shapes[name] <= 0 {
			return fmt.Errorf("sampler: variable %q has no shape", name)
		}
	}
	return nil
}

// Draws holds raw MCMC output: per variable, samples x dim values in
// sampling order.
type Draws map[string][][]float64

// MCMCOptions configures a Sampler invocation.
type MCMCOptions struct {
	// Samples is the number of draws to produce. Defaults to 1000.
	Samples int
	// Start is an optional starting point; zeros when nil.
	Start Point
	// Init names the initialization strategy: "" (start as given),
	// "jitter" (gaussian jitter around the start), or "advi" (seed the
	// chain from a short variational fit).
	Init string
	// NInit is the iteration count for the "advi" init strategy.
	// Defaults to 10000.
	NInit int
	// Seed seeds the sampler's random source; 0 means a fixed default.
	Seed int64
}

// Sampler draws from a compiled target. Implementations are synchronous
// and blocking; cancellation goes through ctx.
type Sampler interface {
	Sample(ctx context.Context, target *Target, opts MCMCOptions) (Draws, error)
}

// ADVIOptions configures a VariationalFitter invocation.
type ADVIOptions struct {
	// Iters is the number of stochastic-gradient iterations.
	Iters int
	// LearnRate is the gradient step size.
	LearnRate float64
	// Seed seeds the fitter's random source; 0 means a fixed default.
	Seed int64
}

// MeanFieldParams holds fitted per-variable gaussian parameters.
type MeanFieldParams struct {
	Mean []float64
	SD   []float64
}

// VariationalFitter fits an approximate posterior instead of sampling.
type VariationalFitter interface {
	Fit(ctx context.Context, target *Target, opts ADVIOptions) (map[string]MeanFieldParams, error)
}
