// Package backend defines the closed polymorphic surface of the fawn
// model compilers: the BackEnd interface implemented by the graph and
// program-text variants, and the options shared by their Run methods.
// The variant is selected at construction time; see the graph and stan
// subpackages and the root fawn package.
package backend

import (
	"context"

	"github.com/fawn-stats/fawn/sampler"
	"github.com/fawn-stats/fawn/spec"
	"github.com/fawn-stats/fawn/trace"
)

// Kind selects a back-end variant.
type Kind string

const (
	// Graph compiles the spec into an imperative probabilistic-program
	// graph and drives an injected sampler.
	Graph Kind = "graph"
	// Stan compiles the spec into Stan program text and drives an
	// external compiler/sampler.
	Stan Kind = "stan"
)

// Method selects the fitting method for a Run.
type Method string

const (
	// MCMC draws posterior samples.
	MCMC Method = "mcmc"
	// ADVI fits variational parameters instead of sampling.
	ADVI Method = "advi"
)

// RunOptions configures a single Run invocation. Zero values select the
// documented defaults.
type RunOptions struct {
	// Method is the fitting method; MCMC when empty.
	Method Method
	// Samples is the number of draws per chain. Defaults to 1000.
	Samples int
	// Chains is the chain count (program-text back end). Defaults to 1.
	Chains int
	// Start is an optional starting point for the sampler.
	Start sampler.Point
	// Init names the sampler initialization strategy.
	Init string
	// NInit is the initialization iteration count. Defaults to 10000.
	NInit int
	// FindMAP computes a maximum-a-posteriori starting point when Start
	// is unset (graph back end).
	FindMAP bool
}

// BackEnd is a model compiler. Instances are single-threaded and
// non-reentrant: Build and Run are called sequentially, and a failed
// Build leaves the instance dirty until Reset. Callers needing concurrent
// fitting must use separate instances.
type BackEnd interface {
	// Reset discards any compiled artifact and re-initializes the
	// instance's accumulators. It is idempotent.
	Reset()
	// Build compiles the model specification, optionally resetting
	// first. It fails fast on the first invalid term.
	Build(m *spec.ModelSpec, reset bool) error
	// Run executes the compiled artifact and returns a normalized
	// result. Sampler-native failures pass through unmodified.
	Run(ctx context.Context, opts RunOptions) (trace.Result, error)
}
