// Package fawn fits Bayesian mixed-effects models. A model is described
// as an abstract specification (spec.ModelSpec) and compiled by one of
// two interchangeable back ends: an in-process probabilistic graph
// evaluated with the bundled samplers, or generated Stan program text
// handed to an external toolchain. Both produce the same normalized
// trace shape.
package fawn

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fawn-stats/fawn/backend"
	"github.com/fawn-stats/fawn/backend/graph"
	"github.com/fawn-stats/fawn/backend/stan"
	"github.com/fawn-stats/fawn/spec"
	"github.com/fawn-stats/fawn/trace"
)

// Model couples a specification with a compilation back end.
type Model struct {
	spec    *spec.ModelSpec
	backend backend.BackEnd
	built   bool
	logger  *zap.Logger
}

// ModelOption configures a Model at construction time.
type ModelOption func(*Model)

// WithLogger sets the logger handed to the selected back end.
func WithLogger(l *zap.Logger) ModelOption {
	return func(m *Model) { m.logger = l }
}

// WithBackEnd injects a back end directly, bypassing kind selection.
func WithBackEnd(b backend.BackEnd) ModelOption {
	return func(m *Model) { m.backend = b }
}

// NewModel constructs a model for the given specification and back-end
// kind. The Stan kind fails here when no external toolchain is
// available.
func NewModel(ms *spec.ModelSpec, kind backend.Kind, opts ...ModelOption) (*Model, error) {
	m := &Model{spec: ms, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend != nil {
		return m, nil
	}

	switch kind {
	case backend.Graph:
		m.backend = graph.New(graph.WithLogger(m.logger))
	case backend.Stan:
		b, err := stan.New(stan.WithLogger(m.logger))
		if err != nil {
			return nil, err
		}
		m.backend = b
	default:
		return nil, fmt.Errorf("fawn: unknown back end %q", kind)
	}
	return m, nil
}

// Build compiles the specification. Safe to call repeatedly; each call
// recompiles from a clean slate.
func (m *Model) Build() error {
	if err := m.backend.Build(m.spec, true); err != nil {
		return err
	}
	m.built = true
	return nil
}

// Fit builds the model if needed and runs the fitting method selected in
// opts (MCMC by default).
func (m *Model) Fit(ctx context.Context, opts backend.RunOptions) (trace.Result, error) {
	if !m.built {
		if err := m.Build(); err != nil {
			return nil, err
		}
	}
	return m.backend.Run(ctx, opts)
}

// BackEnd exposes the underlying back end for kind-specific inspection
// (e.g. the Stan back end's generated program text).
func (m *Model) BackEnd() backend.BackEnd { return m.backend }
