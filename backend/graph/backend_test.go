package graph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fawn-stats/fawn/backend"
	berrors "github.com/fawn-stats/fawn/backend/errors"
	"github.com/fawn-stats/fawn/sampler"
	"github.com/fawn-stats/fawn/spec"
	"github.com/fawn-stats/fawn/trace"
)

func normalPrior(mu, sd float64) *spec.Prior {
	return spec.NewPrior("Normal",
		spec.NamedArg{Key: "mu", Value: spec.Scalar(mu)},
		spec.NamedArg{Key: "sd", Value: spec.Scalar(sd)},
	)
}

func gaussianFamily() *spec.Family {
	return &spec.Family{
		Name:   "gaussian",
		Prior:  spec.NewPrior("Normal", spec.NamedArg{Key: "sd", Value: spec.Scalar(1)}),
		Link:   "identity",
		Parent: "mu",
	}
}

func fixedSpec(t *testing.T) *spec.ModelSpec {
	t.Helper()
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{1, 2, 3, 4, 5}},
		gaussianFamily(),
	)
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:  "x",
		Data:  mat.NewDense(5, 1, []float64{1, 2, 3, 4, 5}),
		Prior: normalPrior(0, 1),
	}))
	return m
}

func TestBuildFixedEffectAccumulator(t *testing.T) {
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{0, 0, 0}},
		gaussianFamily(),
	)
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:  "Intercept",
		Data:  mat.NewDense(3, 1, []float64{1, 1, 1}),
		Prior: normalPrior(0, 10),
	}))
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:  "x",
		Data:  mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}),
		Prior: normalPrior(0, 1),
	}))

	b := New()
	require.NoError(t, b.Build(m, true))

	assert.Contains(t, b.Varnames(), "b_Intercept")
	assert.Contains(t, b.Varnames(), "b_x")

	// mu must be the exact ordered sum of data_i . coef_i.
	point := sampler.Point{"b_Intercept": {2}, "b_x": {0.5, -1}}
	mu := b.LinearPredictor(point)
	// row i: 2*1 + 0.5*X[i,0] - 1*X[i,1]
	want := []float64{2 + 0.5*1 - 2, 2 + 0.5*3 - 4, 2 + 0.5*5 - 6}
	require.Len(t, mu, 3)
	for i := range want {
		assert.InDelta(t, want[i], mu[i], 1e-12)
	}
}

func TestBuildGroupedRandomEffect(t *testing.T) {
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{0, 0, 0, 0}},
		gaussianFamily(),
	)
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:   "subject",
		Random: true,
		Prior:  normalPrior(0, 1),
		Levels: []spec.GroupLevel{
			{Level: "s1", Data: mat.NewDense(4, 3, make([]float64, 12))},
			{Level: "s2", Data: mat.NewDense(4, 3, make([]float64, 12))},
		},
	}))

	b := New()
	require.NoError(t, b.Build(m, true))

	names := b.Varnames()
	assert.Contains(t, names, "u_subject_s1")
	assert.Contains(t, names, "u_subject_s2")
	assert.Len(t, b.model.products, 2)
	assert.Equal(t, 3, b.model.byName["u_subject_s1"].Shape)
}

func TestBuildNonNestedRandomEffectPrefix(t *testing.T) {
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{0, 0}},
		gaussianFamily(),
	)
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:   "grp",
		Random: true,
		Data:   mat.NewDense(2, 1, []float64{1, 1}),
		Prior:  normalPrior(0, 1),
	}))

	b := New()
	require.NoError(t, b.Build(m, true))
	assert.Contains(t, b.Varnames(), "u_grp")
}

func TestPriorExpansionLabels(t *testing.T) {
	hyper := spec.NewPrior("HalfCauchy", spec.NamedArg{Key: "beta", Value: spec.Scalar(5)})
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{0, 0}},
		gaussianFamily(),
	)
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:   "grp",
		Random: true,
		Data:   mat.NewDense(2, 1, []float64{1, 1}),
		Prior: spec.NewPrior("Normal",
			spec.NamedArg{Key: "mu", Value: spec.Scalar(0)},
			spec.NamedArg{Key: "sd", Value: spec.Nested(hyper)},
		),
	}))

	b := New()
	require.NoError(t, b.Build(m, true))

	names := b.Varnames()
	assert.Contains(t, names, "u_grp_sd", "hyperprior label joins parent and arg key")
	assert.Contains(t, names, "u_grp_sd_log", "positive-support hyperprior gets a log dual")

	hidden := b.model.suppressedVars()
	assert.Contains(t, hidden, "u_grp_sd_log")
	assert.NotContains(t, hidden, "u_grp_sd")
	assert.NotContains(t, hidden, "u_grp")
}

func TestBuildUnknownDistribution(t *testing.T) {
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{0}},
		gaussianFamily(),
	)
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:  "x",
		Data:  mat.NewDense(1, 1, []float64{1}),
		Prior: spec.NewPrior("Foo"),
	}))

	b := New()
	err := b.Build(m, true)
	require.Error(t, err)

	var berr *berrors.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, berrors.CodeUnknownDistribution, berr.Code)
	assert.Equal(t, "Foo", berr.Distribution)
	assert.Equal(t, "graph", berr.Backend)
}

func TestBuildMissingArguments(t *testing.T) {
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{0}},
		gaussianFamily(),
	)
	require.NoError(t, m.AddTerm(&spec.Term{
		Name: "x",
		Data: mat.NewDense(1, 1, []float64{1}),
		Prior: spec.NewPrior("Normal",
			spec.NamedArg{Key: "mu", Value: spec.Scalar(0)},
		),
	}))

	b := New()
	err := b.Build(m, true)
	require.Error(t, err)

	var berr *berrors.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, berrors.CodeMissingArguments, berr.Code)
	assert.Equal(t, []string{"sd"}, berr.Missing)
}

func TestLogProbFiniteAndPeaked(t *testing.T) {
	b := New()
	require.NoError(t, b.Build(fixedSpec(t), true))

	target := b.model.target()
	// y was generated as exactly 1*x, so b_x = 1 should beat b_x = 5.
	good := target.LogProb(sampler.Point{"b_x": {1}})
	bad := target.LogProb(sampler.Point{"b_x": {5}})
	require.False(t, math.IsInf(good, 0))
	assert.Greater(t, good, bad)
}

func TestRunMCMCScenario(t *testing.T) {
	b := New()
	require.NoError(t, b.Build(fixedSpec(t), true))

	res, err := b.Run(context.Background(), backend.RunOptions{Method: backend.MCMC, Samples: 100})
	require.NoError(t, err)

	mcmc, ok := res.(*trace.MCMCResult)
	require.True(t, ok)
	require.Equal(t, 1, mcmc.Trace.NChains())

	rows, err := mcmc.Trace.Get(0, "b_x")
	require.NoError(t, err)
	assert.Len(t, rows, 100)

	user := mcmc.Trace.UserVarnames()
	assert.Contains(t, user, "b_x")
	for _, name := range user {
		assert.NotContains(t, name, "_log", "duals must be absent from user-facing names")
	}
	assert.Same(t, mcmc.Spec(), mcmc.Trace.ModelSpec)
}

func TestRunMCMCWithHyperpriorSuppressesDual(t *testing.T) {
	m := spec.NewModelSpec(
		&spec.Response{Name: "y", Data: []float64{1, 2, 3, 4, 5}},
		gaussianFamily(),
	)
	hyper := spec.NewPrior("HalfNormal", spec.NamedArg{Key: "sd", Value: spec.Scalar(1)})
	require.NoError(t, m.AddTerm(&spec.Term{
		Name:   "grp",
		Random: true,
		Data:   mat.NewDense(5, 1, []float64{1, 1, 1, 1, 1}),
		Prior: spec.NewPrior("Normal",
			spec.NamedArg{Key: "mu", Value: spec.Scalar(0)},
			spec.NamedArg{Key: "sd", Value: spec.Nested(hyper)},
		),
	}))

	b := New()
	require.NoError(t, b.Build(m, true))

	res, err := b.Run(context.Background(), backend.RunOptions{Samples: 50})
	require.NoError(t, err)

	mcmc := res.(*trace.MCMCResult)
	assert.Contains(t, mcmc.Trace.Varnames(), "u_grp_sd_log")
	assert.Contains(t, mcmc.SuppressedVars(), "u_grp_sd_log")
	assert.NotContains(t, mcmc.Trace.UserVarnames(), "u_grp_sd_log")
	assert.Contains(t, mcmc.Trace.UserVarnames(), "u_grp_sd")

	// The user-facing scale values are the backtransformed duals.
	raw, err := mcmc.Trace.Get(0, "u_grp_sd")
	require.NoError(t, err)
	dual, err := mcmc.Trace.Get(0, "u_grp_sd_log")
	require.NoError(t, err)
	for i := range raw {
		assert.InDelta(t, math.Exp(dual[i][0]), raw[i][0], 1e-12)
		assert.Greater(t, raw[i][0], 0.0)
	}
}

func TestRunADVI(t *testing.T) {
	b := New()
	require.NoError(t, b.Build(fixedSpec(t), true))

	res, err := b.Run(context.Background(), backend.RunOptions{Method: backend.ADVI, NInit: 200})
	require.NoError(t, err)

	advi, ok := res.(*trace.ADVIResult)
	require.True(t, ok)
	assert.Contains(t, advi.Params, "b_x")
	assert.Len(t, advi.Params["b_x"].Mean, 1)
	assert.Equal(t, advi.SuppressedVars(), b.model.suppressedVars())
}

func TestRunBeforeBuild(t *testing.T) {
	b := New()
	_, err := b.Run(context.Background(), backend.RunOptions{})
	assert.Error(t, err)
}

func TestRunUnknownMethod(t *testing.T) {
	b := New()
	require.NoError(t, b.Build(fixedSpec(t), true))
	_, err := b.Run(context.Background(), backend.RunOptions{Method: "laplace"})
	assert.Error(t, err)
}

func TestResetClearsGraph(t *testing.T) {
	b := New()
	require.NoError(t, b.Build(fixedSpec(t), true))
	require.NotEmpty(t, b.Varnames())

	b.Reset()
	assert.Empty(t, b.Varnames())
	assert.Empty(t, b.model.products)

	// Reset is idempotent.
	b.Reset()
	assert.Empty(t, b.Varnames())
}
