package spec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestModelSpecTermOrder(t *testing.T) {
	m := NewModelSpec(
		&Response{Name: "y", Data: []float64{1, 2, 3}},
		&Family{Name: "gaussian", Link: "identity", Parent: "mu"},
	)

	for _, name := range []string{"Intercept", "x", "z"} {
		err := m.AddTerm(&Term{
			Name:  name,
			Data:  mat.NewDense(3, 1, []float64{1, 1, 1}),
			Prior: NewPrior("Normal", NamedArg{"mu", Scalar(0)}, NamedArg{"sd", Scalar(1)}),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"Intercept", "x", "z"}, m.TermNames())
	assert.Equal(t, 3, m.NumObs())

	_, ok := m.Term("x")
	assert.True(t, ok)
	_, ok = m.Term("missing")
	assert.False(t, ok)
}

func TestModelSpecDuplicateTerm(t *testing.T) {
	m := NewModelSpec(&Response{Name: "y", Data: []float64{0}}, &Family{})
	require.NoError(t, m.AddTerm(&Term{Name: "x"}))
	assert.Error(t, m.AddTerm(&Term{Name: "x"}))
}

func TestPriorArgVariants(t *testing.T) {
	hyper := NewPrior("HalfCauchy", NamedArg{"beta", Scalar(5)})
	p := NewPrior("Normal",
		NamedArg{"mu", Vector(0, 1)},
		NamedArg{"sd", Nested(hyper)},
	)

	mu, ok := p.Arg("mu")
	require.True(t, ok)
	assert.Equal(t, KindVector, mu.Kind())
	assert.Equal(t, []float64{0, 1}, mu.VectorValue())

	sd, ok := p.Arg("sd")
	require.True(t, ok)
	assert.Equal(t, KindPrior, sd.Kind())
	assert.Equal(t, "HalfCauchy", sd.PriorValue().Name)

	_, ok = p.Arg("nu")
	assert.False(t, ok)
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "b_x", CoefName("x", false))
	assert.Equal(t, "u_x", CoefName("x", true))
	assert.Equal(t, "u_subject_s1", LevelCoefName("subject", "s1"))
	assert.Equal(t, "b_x_data", DataName("b_x"))
	assert.Equal(t, "u_x_sd", ChildName("u_x", "sd"))
}

func TestResolveLink(t *testing.T) {
	cases := []struct {
		link string
		in   float64
		want float64
	}{
		{"identity", 2.5, 2.5},
		{"logit", 0, 0.5},
		{"inverse", 4, 0.25},
		{"log", math.E, 1},
	}
	for _, c := range cases {
		fam := &Family{Link: c.link}
		fn, err := fam.ResolveLink()
		require.NoError(t, err, c.link)
		assert.InDelta(t, c.want, fn(c.in), 1e-12, c.link)
	}

	_, err := (&Family{Link: "cloglog"}).ResolveLink()
	assert.Error(t, err)

	// A direct callable takes precedence over the registry name.
	fam := &Family{Link: "identity", LinkFunc: func(x float64) float64 { return -x }}
	fn, err := fam.ResolveLink()
	require.NoError(t, err)
	assert.Equal(t, -3.0, fn(3))
}
