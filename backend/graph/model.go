package graph

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fawn-stats/fawn/sampler"
	"github.com/fawn-stats/fawn/spec"
)

// argValue is a resolved distribution argument: a numeric constant
// (broadcast over the variable's elements), a reference to another random
// variable (a materialized hyperprior), or the link-transformed linear
// predictor (the outcome's parent argument).
type argValue struct {
	constant []float64
	ref      *RV
	linked   bool
}

func constArg(vals []float64) argValue { return argValue{constant: vals} }
func refArg(rv *RV) argValue           { return argValue{ref: rv} }
func linkedArg() argValue              { return argValue{linked: true} }

// RV is one random-variable node in the probabilistic-program graph.
type RV struct {
	Name  string
	Dist  string
	Shape int
	// Observed holds the outcome data for the likelihood node; nil for
	// latent variables.
	Observed []float64

	def  distDef
	args []argValue // aligned with def.params

	// Transform and bounds describe the automatic reparameterization, if
	// any. The sampler sees the unconstrained dual variable.
	Transform    transform
	lower, upper float64
}

// DualName returns the name of the unconstrained dual, or "" when the
// variable is not reparameterized.
func (rv *RV) DualName() string {
	suffix := rv.Transform.dualSuffix()
	if suffix == "" {
		return ""
	}
	return rv.Name + suffix
}

// sampleName returns the name under which the sampler sees this variable.
func (rv *RV) sampleName() string {
	if dual := rv.DualName(); dual != "" {
		return dual
	}
	return rv.Name
}

// constrained recovers the variable's constrained values from a sampler
// point.
func (rv *RV) constrained(point sampler.Point) []float64 {
	if rv.Observed != nil {
		return rv.Observed
	}
	raw := point[rv.sampleName()]
	switch rv.Transform {
	case transformLog:
		x := make([]float64, len(raw))
		for i, z := range raw {
			x[i] = math.Exp(z)
		}
		return x
	case transformInterval:
		x := make([]float64, len(raw))
		for i, z := range raw {
			s := 1 / (1 + math.Exp(-z))
			x[i] = rv.lower + (rv.upper-rv.lower)*s
		}
		return x
	default:
		return raw
	}
}

// logJacobian is the log-determinant of the backtransform at the dual
// point, added to the density so sampling happens in unconstrained space.
func (rv *RV) logJacobian(point sampler.Point) float64 {
	raw := point[rv.sampleName()]
	switch rv.Transform {
	case transformLog:
		lj := 0.0
		for _, z := range raw {
			lj += z
		}
		return lj
	case transformInterval:
		lj := 0.0
		width := rv.upper - rv.lower
		for _, z := range raw {
			s := 1 / (1 + math.Exp(-z))
			lj += math.Log(width) + math.Log(s) + math.Log(1-s)
		}
		return lj
	default:
		return 0
	}
}

// product is one additive contribution to the linear predictor.
type product struct {
	data *mat.Dense
	coef *RV
}

// progModel is the compiled probabilistic-program graph: latent nodes in
// creation order, the observed outcome node, the linear-predictor product
// list, and the transform-pair registry used to tell user-facing
// variables from internal duals.
type progModel struct {
	latents  []*RV
	byName   map[string]*RV
	observed *RV
	products []product
	link     spec.LinkFunc

	// transforms maps each reparameterized variable to its dual.
	transforms map[string]string
}

func newProgModel() *progModel {
	return &progModel{
		byName:     make(map[string]*RV),
		transforms: make(map[string]string),
	}
}

func (m *progModel) addLatent(rv *RV) {
	m.latents = append(m.latents, rv)
	m.byName[rv.Name] = rv
	if dual := rv.DualName(); dual != "" {
		m.transforms[rv.Name] = dual
	}
}

// broadcast indexes a value vector the numpy way: a length-1 vector
// repeats over all elements.
func broadcast(vals []float64, i int) float64 {
	return vals[i%len(vals)]
}

// argsAt resolves the i-th element's distribution arguments. mu is the
// link-transformed linear predictor, non-nil only while evaluating the
// outcome node.
func (m *progModel) argsAt(rv *RV, point sampler.Point, i int, mu []float64) []float64 {
	out := make([]float64, len(rv.args))
	for j, a := range rv.args {
		switch {
		case a.linked:
			out[j] = mu[i]
		case a.ref != nil:
			out[j] = broadcast(a.ref.constrained(point), i)
		default:
			out[j] = broadcast(a.constant, i)
		}
	}
	return out
}

// evalMu evaluates the additive linear predictor at a point.
func (m *progModel) evalMu(point sampler.Point, n int) []float64 {
	mu := make([]float64, n)
	var acc mat.VecDense
	for _, p := range m.products {
		coef := p.coef.constrained(point)
		acc.MulVec(p.data, mat.NewVecDense(len(coef), coef))
		for i := 0; i < n; i++ {
			mu[i] += acc.AtVec(i)
		}
	}
	return mu
}

// logProb is the joint log-density over all free variables, evaluated in
// the sampler's unconstrained space.
func (m *progModel) logProb(point sampler.Point) float64 {
	lp := 0.0
	for _, rv := range m.latents {
		x := rv.constrained(point)
		for i := range x {
			lp += rv.def.logProb(x[i], m.argsAt(rv, point, i, nil))
		}
		lp += rv.logJacobian(point)
		if math.IsInf(lp, -1) {
			return lp
		}
	}
	if m.observed != nil {
		n := len(m.observed.Observed)
		linked := m.evalMu(point, n)
		for i := range linked {
			linked[i] = m.link(linked[i])
		}
		for i, y := range m.observed.Observed {
			lp += m.observed.def.logProb(y, m.argsAt(m.observed, point, i, linked))
		}
	}
	if math.IsNaN(lp) {
		return math.Inf(-1)
	}
	return lp
}

// target compiles the graph into a sampling target over the free
// (unconstrained) variables.
func (m *progModel) target() *sampler.Target {
	names := make([]string, 0, len(m.latents))
	shapes := make(map[string]int, len(m.latents))
	for _, rv := range m.latents {
		names = append(names, rv.sampleName())
		shapes[rv.sampleName()] = rv.Shape
	}
	return &sampler.Target{Names: names, Shapes: shapes, LogProb: m.logProb}
}

// suppressedVars lists the internal variable names hidden from
// user-facing output. Transform pairs are registered explicitly when a
// node is created, so the unconstrained duals are exactly the variables
// that belong to neither the transformed nor the untransformed set.
func (m *progModel) suppressedVars() []string {
	var hidden []string
	for _, rv := range m.latents {
		if dual := rv.DualName(); dual != "" {
			hidden = append(hidden, dual)
		}
	}
	return hidden
}
