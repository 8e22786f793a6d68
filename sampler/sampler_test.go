package sampler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gaussianTarget builds a separable gaussian log-density with the given
// per-coordinate means, unit variance.
func gaussianTarget(names []string, shapes map[string]int, means Point) *Target {
	t := &Target{Names: names, Shapes: shapes}
	t.LogProb = func(p Point) float64 {
		lp := 0.0
		for _, name := range names {
			for i, v := range p[name] {
				d := v - means[name][i]
				lp -= 0.5 * d * d
			}
		}
		return lp
	}
	return t
}

func TestTargetFlattenRoundTrip(t *testing.T) {
	target := &Target{
		Names:  []string{"b_x", "u_g"},
		Shapes: map[string]int{"b_x": 1, "u_g": 3},
	}

	p := Point{"b_x": {1.5}, "u_g": {1, 2, 3}}
	flat := target.Flatten(p)
	assert.Equal(t, []float64{1.5, 1, 2, 3}, flat)
	assert.Equal(t, 4, target.Dim())

	back := target.Unflatten(flat)
	assert.Equal(t, p, back)

	// A nil start flattens to zeros.
	assert.Equal(t, []float64{0, 0, 0, 0}, target.Flatten(nil))
}

func TestRandomWalkDrawShapes(t *testing.T) {
	target := gaussianTarget(
		[]string{"b_x", "u_g"},
		map[string]int{"b_x": 1, "u_g": 2},
		Point{"b_x": {0}, "u_g": {0, 0}},
	)

	s := NewRandomWalk()
	draws, err := s.Sample(context.Background(), target, MCMCOptions{Samples: 50})
	require.NoError(t, err)

	require.Len(t, draws["b_x"], 50)
	require.Len(t, draws["u_g"], 50)
	assert.Len(t, draws["b_x"][0], 1)
	assert.Len(t, draws["u_g"][0], 2)
}

func TestRandomWalkDeterministicSeed(t *testing.T) {
	target := gaussianTarget([]string{"b_x"}, map[string]int{"b_x": 1}, Point{"b_x": {2}})

	s := NewRandomWalk()
	a, err := s.Sample(context.Background(), target, MCMCOptions{Samples: 20, Seed: 7})
	require.NoError(t, err)
	b, err := s.Sample(context.Background(), target, MCMCOptions{Samples: 20, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestRandomWalkUnknownInit(t *testing.T) {
	target := gaussianTarget([]string{"b_x"}, map[string]int{"b_x": 1}, Point{"b_x": {0}})

	s := NewRandomWalk()
	_, err := s.Sample(context.Background(), target, MCMCOptions{Samples: 5, Init: "nuts"})
	require.Error(t, err)
	assert.IsType(t, &UnknownInitError{}, err)
}

func TestRandomWalkCancellation(t *testing.T) {
	target := gaussianTarget([]string{"b_x"}, map[string]int{"b_x": 1}, Point{"b_x": {0}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewRandomWalk()
	_, err := s.Sample(ctx, target, MCMCOptions{Samples: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindMAP(t *testing.T) {
	target := gaussianTarget(
		[]string{"b_x", "b_z"},
		map[string]int{"b_x": 1, "b_z": 1},
		Point{"b_x": {3}, "b_z": {-1.5}},
	)

	point, err := FindMAP(target, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3, point["b_x"][0], 1e-3)
	assert.InDelta(t, -1.5, point["b_z"][0], 1e-3)
}

func TestMeanFieldADVIRecoversMean(t *testing.T) {
	target := gaussianTarget([]string{"b_x"}, map[string]int{"b_x": 1}, Point{"b_x": {2}})

	fitter := &MeanFieldADVI{}
	params, err := fitter.Fit(context.Background(), target, ADVIOptions{Iters: 4000, LearnRate: 0.05, Seed: 11})
	require.NoError(t, err)

	mf := params["b_x"]
	require.Len(t, mf.Mean, 1)
	require.Len(t, mf.SD, 1)
	assert.InDelta(t, 2, mf.Mean[0], 0.5)
	assert.Greater(t, mf.SD[0], 0.0)
}
