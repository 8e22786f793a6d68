// Package spec defines the abstract model specification consumed by the
// fawn back ends. A ModelSpec holds an ordered collection of terms (fixed
// and random effects), an observed response, and an outcome family. The
// back ends read specifications but never mutate them.
package spec

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ArgKind discriminates the variants a prior argument can take.
type ArgKind int

const (
	// KindScalar is a plain numeric argument.
	KindScalar ArgKind = iota
	// KindVector is a numeric array argument (e.g. per-column means).
	KindVector
	// KindPrior is a nested prior (hyperprior) argument.
	KindPrior
)

// ArgValue is a tagged variant holding a prior argument: a numeric scalar,
// a numeric vector, or a nested Prior describing a hyperprior.
type ArgValue struct {
	kind   ArgKind
	scalar float64
	vector []float64
	prior  *Prior
}

// Scalar wraps a numeric value as a prior argument.
func Scalar(v float64) ArgValue { return ArgValue{kind: KindScalar, scalar: v} }

// Vector wraps a numeric array as a prior argument.
func Vector(vs ...float64) ArgValue { return ArgValue{kind: KindVector, vector: vs} }

// Nested wraps a hyperprior as a prior argument.
func Nested(p *Prior) ArgValue { return ArgValue{kind: KindPrior, prior: p} }

// Kind reports which variant the argument holds.
func (a ArgValue) Kind() ArgKind { return a.kind }

// ScalarValue returns the numeric value of a KindScalar argument.
func (a ArgValue) ScalarValue() float64 { return a.scalar }

// VectorValue returns the array of a KindVector argument.
func (a ArgValue) VectorValue() []float64 { return a.vector }

// PriorValue returns the nested prior of a KindPrior argument.
func (a ArgValue) PriorValue() *Prior { return a.prior }

// NamedArg is one keyword argument of a Prior. Argument order is
// preserved so that compiled output is deterministic.
type NamedArg struct {
	Key   string
	Value ArgValue
}

// Prior is a possibly-unresolved distribution descriptor: a distribution
// name plus named arguments, any of which may itself be a nested Prior.
// Nesting must be acyclic; nested priors bottom out in numeric leaves.
type Prior struct {
	Name string
	Args []NamedArg
}

// NewPrior constructs a prior from a distribution name and arguments.
func NewPrior(name string, args ...NamedArg) *Prior {
	return &Prior{Name: name, Args: args}
}

// Arg returns the value bound to key, if present.
func (p *Prior) Arg(key string) (ArgValue, bool) {
	for _, a := range p.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return ArgValue{}, false
}

// GroupLevel is one level of a grouped (random) effect: the level's value
// and its design sub-matrix (rows = observations).
type GroupLevel struct {
	Level string
	Data  *mat.Dense
}

// Term is one additive component of the linear predictor.
//
// Exactly one of Data and Levels is set: Data for a fixed effect or a
// non-nested random effect, Levels for a grouped random effect with one
// design sub-matrix per group level.
type Term struct {
	Name   string
	Random bool
	Prior  *Prior
	Data   *mat.Dense
	Levels []GroupLevel
}

// Grouped reports whether the term expands per group level.
func (t *Term) Grouped() bool { return t.Levels != nil }

// Response is the observed outcome variable.
type Response struct {
	Name string
	Data []float64
}

// Family describes the outcome distribution and link function. Prior is
// the outcome distribution descriptor; its Parent argument name receives
// the link-transformed linear predictor at build time. Link is resolved
// against the fixed registry unless LinkFunc is set directly.
type Family struct {
	Name     string
	Prior    *Prior
	Link     string
	LinkFunc LinkFunc
	Parent   string
}

// ModelSpec is the compilation input: an ordered term collection, a
// response, and a family. Terms are kept in insertion order; the back
// ends walk them in that order.
type ModelSpec struct {
	Response *Response
	Family   *Family

	terms []*Term
	index map[string]int
}

// NewModelSpec constructs an empty specification for the given response
// and family.
func NewModelSpec(resp *Response, fam *Family) *ModelSpec {
	return &ModelSpec{
		Response: resp,
		Family:   fam,
		index:    make(map[string]int),
	}
}

// AddTerm appends a term. Term names are unique keys.
func (m *ModelSpec) AddTerm(t *Term) error {
	if _, dup := m.index[t.Name]; dup {
		return fmt.Errorf("spec: term %q already present in model", t.Name)
	}
	m.index[t.Name] = len(m.terms)
	m.terms = append(m.terms, t)
	return nil
}

// Terms returns all terms in insertion order.
func (m *ModelSpec) Terms() []*Term { return m.terms }

// Term looks a term up by name.
func (m *ModelSpec) Term(name string) (*Term, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.terms[i], true
}

// TermNames returns the term names in insertion order.
func (m *ModelSpec) TermNames() []string {
	names := make([]string, len(m.terms))
	for i, t := range m.terms {
		names[i] = t.Name
	}
	return names
}

// NumObs is the number of observations, fixed for the whole spec.
func (m *ModelSpec) NumObs() int { return len(m.Response.Data) }
