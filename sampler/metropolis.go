package sampler

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"
)

// RandomWalk is a componentwise random-walk Metropolis sampler. It is the
// default MCMC capability for the graph back end; production users can
// inject anything implementing Sampler.
type RandomWalk struct {
	// StepSize is the proposal standard deviation. Defaults to 0.5.
	StepSize float64
	// Logger receives sampling progress; nop when nil.
	Logger *zap.Logger
}

// NewRandomWalk constructs a sampler with default settings.
func NewRandomWalk() *RandomWalk {
	return &RandomWalk{StepSize: 0.5, Logger: zap.NewNop()}
}

func (s *RandomWalk) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Sample draws opts.Samples points from the target.
func (s *RandomWalk) Sample(ctx context.Context, target *Target, opts MCMCOptions) (Draws, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	samples := opts.Samples
	if samples <= 0 {
		samples = 1000
	}
	step := s.StepSize
	if step <= 0 {
		step = 0.5
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 42
	}
	rng := rand.New(rand.NewSource(seed))

	x, err := s.initialPoint(ctx, target, opts, rng)
	if err != nil {
		return nil, err
	}
	logp := target.LogProb(target.Unflatten(x))

	log := s.logger()
	log.Info("starting random-walk sampling",
		zap.Int("samples", samples), zap.Int("dim", target.Dim()))

	draws := make(Draws, len(target.Names))
	for _, name := range target.Names {
		draws[name] = make([][]float64, 0, samples)
	}

	accepted := 0
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for d := range x {
			old := x[d]
			x[d] = old + rng.NormFloat64()*step
			proposal := target.LogProb(target.Unflatten(x))
			if math.Log(rng.Float64()) < proposal-logp {
				logp = proposal
				accepted++
			} else {
				x[d] = old
			}
		}
		point := target.Unflatten(x)
		for _, name := range target.Names {
			draws[name] = append(draws[name], point[name])
		}
		if (i+1)%500 == 0 {
			log.Debug("sampling progress", zap.Int("draw", i+1), zap.Float64("logp", logp))
		}
	}

	log.Info("sampling finished",
		zap.Int("samples", samples),
		zap.Float64("acceptance", float64(accepted)/float64(samples*target.Dim())))
	return draws, nil
}

func (s *RandomWalk) initialPoint(ctx context.Context, target *Target, opts MCMCOptions, rng *rand.Rand) ([]float64, error) {
	x := target.Flatten(opts.Start)

	switch opts.Init {
	case "":
		return x, nil
	case "jitter":
		for d := range x {
			x[d] += rng.NormFloat64() * 0.1
		}
		return x, nil
	case "advi":
		nInit := opts.NInit
		if nInit <= 0 {
			nInit = 10000
		}
		fitter := &MeanFieldADVI{Logger: s.Logger}
		params, err := fitter.Fit(ctx, target, ADVIOptions{Iters: nInit, Seed: opts.Seed})
		if err != nil {
			return nil, err
		}
		point := make(Point, len(target.Names))
		for name, mf := range params {
			point[name] = mf.Mean
		}
		return target.Flatten(point), nil
	default:
		return nil, &UnknownInitError{Init: opts.Init}
	}
}

// UnknownInitError reports an unrecognized initialization strategy.
type UnknownInitError struct {
	Init string
}

func (e *UnknownInitError) Error() string {
	return "sampler: unknown init strategy \"" + e.Init + "\""
}
