package graph

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// transform names an automatic reparameterization applied to a
// constrained variable. The sampler works on the unconstrained dual; the
// constrained value is recovered by the backtransform and the dual is
// suppressed from user-facing output.
type transform int

const (
	transformNone transform = iota
	// transformLog maps (0, inf) to the real line.
	transformLog
	// transformInterval maps (lower, upper) to the real line.
	transformInterval
)

// distDef describes one entry of the graph back end's distribution
// vocabulary: the required argument names in canonical order, the
// log-density, and the transform implied by the value domain.
type distDef struct {
	params    []string
	transform transform
	// logProb evaluates the log-density at x given the resolved
	// arguments, in params order.
	logProb func(x float64, args []float64) float64
}

const ln2 = 0.6931471805599453

// graphDists is the graph back end's distribution vocabulary.
var graphDists = map[string]distDef{
	"Normal": {
		params: []string{"mu", "sd"},
		logProb: func(x float64, a []float64) float64 {
			if a[1] <= 0 {
				return math.Inf(-1)
			}
			return distuv.Normal{Mu: a[0], Sigma: a[1]}.LogProb(x)
		},
	},
	"Cauchy": {
		params: []string{"alpha", "beta"},
		logProb: func(x float64, a []float64) float64 {
			if a[1] <= 0 {
				return math.Inf(-1)
			}
			return distuv.StudentsT{Mu: a[0], Sigma: a[1], Nu: 1}.LogProb(x)
		},
	},
	"StudentT": {
		params: []string{"nu", "mu", "sd"},
		logProb: func(x float64, a []float64) float64 {
			if a[0] <= 0 || a[2] <= 0 {
				return math.Inf(-1)
			}
			return distuv.StudentsT{Mu: a[1], Sigma: a[2], Nu: a[0]}.LogProb(x)
		},
	},
	"HalfNormal": {
		params:    []string{"sd"},
		transform: transformLog,
		logProb: func(x float64, a []float64) float64 {
			if x < 0 || a[0] <= 0 {
				return math.Inf(-1)
			}
			return ln2 + distuv.Normal{Mu: 0, Sigma: a[0]}.LogProb(x)
		},
	},
	"HalfCauchy": {
		params:    []string{"beta"},
		transform: transformLog,
		logProb: func(x float64, a []float64) float64 {
			if x < 0 || a[0] <= 0 {
				return math.Inf(-1)
			}
			return ln2 + distuv.StudentsT{Mu: 0, Sigma: a[0], Nu: 1}.LogProb(x)
		},
	},
	"Uniform": {
		params:    []string{"lower", "upper"},
		transform: transformInterval,
		logProb: func(x float64, a []float64) float64 {
			if x < a[0] || x > a[1] || a[1] <= a[0] {
				return math.Inf(-1)
			}
			return -math.Log(a[1] - a[0])
		},
	},
	"Flat": {
		params:  nil,
		logProb: func(x float64, a []float64) float64 { return 0 },
	},
	"Bernoulli": {
		params: []string{"p"},
		logProb: func(x float64, a []float64) float64 {
			p := a[0]
			if p <= 0 || p >= 1 {
				if (p == 0 && x == 0) || (p == 1 && x == 1) {
					return 0
				}
				return math.Inf(-1)
			}
			if x >= 0.5 {
				return math.Log(p)
			}
			return math.Log(1 - p)
		},
	},
	"Poisson": {
		params: []string{"mu"},
		logProb: func(x float64, a []float64) float64 {
			if a[0] <= 0 || x < 0 {
				return math.Inf(-1)
			}
			return distuv.Poisson{Lambda: a[0]}.LogProb(math.Round(x))
		},
	},
}

// dualSuffix returns the name suffix of a transform's unconstrained dual.
func (t transform) dualSuffix() string {
	switch t {
	case transformLog:
		return "_log"
	case transformInterval:
		return "_interval"
	default:
		return ""
	}
}
