package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainWith(chain int, vars map[string][][]float64, order []string) *ChainTrace {
	ct := NewChainTrace(chain)
	for _, name := range order {
		ct.Set(name, vars[name])
	}
	return ct
}

func TestMultiTraceUserVarnames(t *testing.T) {
	ct := chainWith(0, map[string][][]float64{
		"b_x":  {{1}, {2}},
		"yhat": {{0.5, 0.6}, {0.7, 0.8}},
	}, []string{"b_x", "yhat"})

	mt := NewMultiTrace([]*ChainTrace{ct}, []string{"yhat"}, nil)

	assert.Equal(t, []string{"b_x", "yhat"}, mt.Varnames())
	assert.Equal(t, []string{"b_x"}, mt.UserVarnames())
	assert.Equal(t, 1, mt.NChains())
	assert.Equal(t, 2, ct.Len())
}

func TestMultiTraceGet(t *testing.T) {
	ct := chainWith(0, map[string][][]float64{"b_x": {{1}, {2}}}, []string{"b_x"})
	mt := NewMultiTrace([]*ChainTrace{ct}, nil, nil)

	rows, err := mt.Get(0, "b_x")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}}, rows)

	_, err = mt.Get(1, "b_x")
	assert.Error(t, err)
	_, err = mt.Get(0, "b_z")
	assert.Error(t, err)
}

func TestResultKinds(t *testing.T) {
	mcmc := &MCMCResult{Trace: NewMultiTrace(nil, []string{"yhat"}, nil)}
	advi := &ADVIResult{
		Params:     map[string]Variational{"b_x": {Mean: []float64{0}, SD: []float64{1}}},
		Suppressed: []string{"yhat"},
	}

	var results []Result = []Result{mcmc, advi}
	for _, r := range results {
		assert.Equal(t, []string{"yhat"}, r.SuppressedVars())
		assert.Nil(t, r.Spec())
	}
}
