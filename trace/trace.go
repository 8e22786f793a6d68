// Package trace provides the normalized posterior-draw containers shared
// by the fawn back ends. A MultiTrace holds one ChainTrace per chain,
// keyed by variable name, plus the set of internal variable names to
// suppress from user-facing output. Traces are assembled once by a back
// end's Run and never mutated afterwards.
package trace

import (
	"fmt"

	"github.com/fawn-stats/fawn/spec"
)

// ChainTrace holds the draws of a single chain. Each variable maps to a
// samples × dim matrix of draws, one row per draw, in sampling order.
type ChainTrace struct {
	Chain int

	names []string
	draws map[string][][]float64
}

// NewChainTrace creates an empty trace for the given chain index.
func NewChainTrace(chain int) *ChainTrace {
	return &ChainTrace{Chain: chain, draws: make(map[string][][]float64)}
}

// Set records the draws for one variable. Insertion order is preserved.
func (c *ChainTrace) Set(name string, rows [][]float64) {
	if _, seen := c.draws[name]; !seen {
		c.names = append(c.names, name)
	}
	c.draws[name] = rows
}

// Get returns the draws for one variable.
func (c *ChainTrace) Get(name string) ([][]float64, bool) {
	rows, ok := c.draws[name]
	return rows, ok
}

// Varnames returns the variable names in insertion order.
func (c *ChainTrace) Varnames() []string { return c.names }

// Len returns the number of draws per variable.
func (c *ChainTrace) Len() int {
	for _, rows := range c.draws {
		return len(rows)
	}
	return 0
}

// MultiTrace is the normalized multi-chain container of posterior draws.
type MultiTrace struct {
	Chains []*ChainTrace
	// Suppressed lists internal variable names (deterministic values such
	// as the fitted mean, and unconstrained transform duals) hidden from
	// user-facing output.
	Suppressed []string
	// ModelSpec is the abstract specification the trace was drawn from.
	ModelSpec *spec.ModelSpec
}

// NewMultiTrace assembles a trace from per-chain draws.
func NewMultiTrace(chains []*ChainTrace, suppressed []string, m *spec.ModelSpec) *MultiTrace {
	return &MultiTrace{Chains: chains, Suppressed: suppressed, ModelSpec: m}
}

// NChains returns the number of chains.
func (t *MultiTrace) NChains() int { return len(t.Chains) }

// Varnames returns all variable names, taken from the first chain.
func (t *MultiTrace) Varnames() []string {
	if len(t.Chains) == 0 {
		return nil
	}
	return t.Chains[0].Varnames()
}

// UserVarnames returns the variable names with suppressed names removed.
func (t *MultiTrace) UserVarnames() []string {
	hidden := make(map[string]bool, len(t.Suppressed))
	for _, name := range t.Suppressed {
		hidden[name] = true
	}
	var names []string
	for _, name := range t.Varnames() {
		if !hidden[name] {
			names = append(names, name)
		}
	}
	return names
}

// Get returns the draws of one variable in one chain.
func (t *MultiTrace) Get(chain int, name string) ([][]float64, error) {
	if chain < 0 || chain >= len(t.Chains) {
		return nil, fmt.Errorf("trace: chain %d out of range (have %d)", chain, len(t.Chains))
	}
	rows, ok := t.Chains[chain].Get(name)
	if !ok {
		return nil, fmt.Errorf("trace: no variable %q in chain %d", name, chain)
	}
	return rows, nil
}

// Result is a fitted-model result: MCMC draws or variational parameters.
// Both kinds carry a reference to the original spec and the suppressed
// variable set.
type Result interface {
	SuppressedVars() []string
	Spec() *spec.ModelSpec
}

// MCMCResult wraps a MultiTrace of posterior draws.
type MCMCResult struct {
	Trace *MultiTrace
}

// SuppressedVars returns the internal variable names hidden from output.
func (r *MCMCResult) SuppressedVars() []string { return r.Trace.Suppressed }

// Spec returns the abstract specification the model was compiled from.
func (r *MCMCResult) Spec() *spec.ModelSpec { return r.Trace.ModelSpec }

// Variational holds the fitted mean-field parameters of one variable.
type Variational struct {
	Mean []float64
	SD   []float64
}

// ADVIResult holds variational-inference parameters instead of draws, with
// the same suppressed-variable metadata as an MCMC result.
type ADVIResult struct {
	Params     map[string]Variational
	Suppressed []string
	ModelSpec  *spec.ModelSpec
}

// SuppressedVars returns the internal variable names hidden from output.
func (r *ADVIResult) SuppressedVars() []string { return r.Suppressed }

// Spec returns the abstract specification the model was compiled from.
func (r *ADVIResult) Spec() *spec.ModelSpec { return r.ModelSpec }
