// Package graph implements the graph-based model compiler: it assembles
// an abstract model specification into an imperative probabilistic-program
// graph (one random-variable node per coefficient, an additive linear
// predictor, a link function, and an observed outcome node) and drives an
// injected sampler over the result.
package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fawn-stats/fawn/backend"
	"github.com/fawn-stats/fawn/backend/errors"
	"github.com/fawn-stats/fawn/sampler"
	"github.com/fawn-stats/fawn/spec"
	"github.com/fawn-stats/fawn/trace"
)

// backendName identifies this back end in error values.
const backendName = "graph"

// BackEnd compiles model specifications into a probabilistic-program
// graph. Instances are single-threaded and non-reentrant; use separate
// instances for concurrent fitting.
type BackEnd struct {
	model *progModel
	spec  *spec.ModelSpec

	mcmc   sampler.Sampler
	vi     sampler.VariationalFitter
	logger *zap.Logger
}

// Option configures a BackEnd at construction time.
type Option func(*BackEnd)

// WithSampler injects the MCMC capability.
func WithSampler(s sampler.Sampler) Option {
	return func(b *BackEnd) { b.mcmc = s }
}

// WithVariationalFitter injects the ADVI capability.
func WithVariationalFitter(v sampler.VariationalFitter) Option {
	return func(b *BackEnd) { b.vi = v }
}

// WithLogger sets the build/run logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *BackEnd) { b.logger = l }
}

// New constructs a graph back end with the reference sampler and
// variational fitter unless others are injected.
func New(opts ...Option) *BackEnd {
	b := &BackEnd{
		mcmc:   sampler.NewRandomWalk(),
		vi:     &sampler.MeanFieldADVI{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Reset()
	return b
}

// Reset discards the graph and the linear-predictor accumulator and
// re-initializes both to empty.
func (b *BackEnd) Reset() {
	b.model = newProgModel()
	b.spec = nil
}

// Build compiles the model specification into the graph. Any term whose
// prior references an unrecognized distribution fails the whole build; the
// partially built graph stays dirty until the next Reset.
func (b *BackEnd) Build(m *spec.ModelSpec, reset bool) error {
	if reset {
		b.Reset()
	}
	b.logger.Debug("building probabilistic-program graph",
		zap.Int("terms", len(m.Terms())), zap.Int("observations", m.NumObs()))

	for _, t := range m.Terms() {
		if t.Grouped() {
			for _, lvl := range t.Levels {
				name := spec.LevelCoefName(t.Name, lvl.Level)
				rv, err := b.buildDist(name, t.Prior.Name, t.Prior.Args, ncols(lvl.Data))
				if err != nil {
					return err
				}
				b.model.products = append(b.model.products, product{data: lvl.Data, coef: rv})
			}
			continue
		}
		name := spec.CoefName(t.Name, t.Random)
		rv, err := b.buildDist(name, t.Prior.Name, t.Prior.Args, ncols(t.Data))
		if err != nil {
			return err
		}
		b.model.products = append(b.model.products, product{data: t.Data, coef: rv})
	}

	link, err := m.Family.ResolveLink()
	if err != nil {
		return err
	}
	b.model.link = link

	if err := b.buildObserved(m); err != nil {
		return err
	}

	b.spec = m
	return nil
}

// buildDist materializes one parameter node, expanding nested hyperpriors
// depth-first. A hyperprior bound to argument key of a node labeled L
// becomes its own scalar node labeled L_key.
func (b *BackEnd) buildDist(label, distName string, args []spec.NamedArg, shape int) (*RV, error) {
	def, ok := graphDists[distName]
	if !ok {
		return nil, errors.NewUnknownDistribution(backendName, distName)
	}

	resolved := make(map[string]argValue, len(args))
	for _, a := range args {
		switch a.Value.Kind() {
		case spec.KindPrior:
			hyper := a.Value.PriorValue()
			child, err := b.buildDist(spec.ChildName(label, a.Key), hyper.Name, hyper.Args, 1)
			if err != nil {
				return nil, err
			}
			resolved[a.Key] = refArg(child)
		case spec.KindVector:
			resolved[a.Key] = constArg(a.Value.VectorValue())
		default:
			resolved[a.Key] = constArg([]float64{a.Value.ScalarValue()})
		}
	}

	ordered, missing := orderArgs(def, resolved)
	if len(missing) > 0 {
		return nil, errors.NewMissingArguments(backendName, distName, missing)
	}

	rv := &RV{
		Name:      label,
		Dist:      distName,
		Shape:     shape,
		def:       def,
		args:      ordered,
		Transform: def.transform,
	}
	if def.transform == transformInterval {
		lo, hi, numeric := constantBounds(ordered)
		if numeric {
			rv.lower, rv.upper = lo, hi
		} else {
			// Bounds driven by another node cannot be reparameterized;
			// sample the raw variable and let the density reject.
			rv.Transform = transformNone
		}
	}
	b.model.addLatent(rv)
	return rv, nil
}

// buildObserved materializes the outcome node: the family prior with the
// link-transformed linear predictor injected into its parent argument and
// the response data observed.
func (b *BackEnd) buildObserved(m *spec.ModelSpec) error {
	fam := m.Family
	def, ok := graphDists[fam.Prior.Name]
	if !ok {
		return errors.NewUnknownDistribution(backendName, fam.Prior.Name)
	}
	parentOK := false
	for _, p := range def.params {
		if p == fam.Parent {
			parentOK = true
		}
	}
	if !parentOK {
		return fmt.Errorf("graph: outcome distribution %s has no argument %q to receive the linear predictor",
			fam.Prior.Name, fam.Parent)
	}

	resolved := make(map[string]argValue, len(fam.Prior.Args)+1)
	for _, a := range fam.Prior.Args {
		if a.Key == fam.Parent {
			continue
		}
		switch a.Value.Kind() {
		case spec.KindPrior:
			hyper := a.Value.PriorValue()
			child, err := b.buildDist(spec.ChildName(m.Response.Name, a.Key), hyper.Name, hyper.Args, 1)
			if err != nil {
				return err
			}
			resolved[a.Key] = refArg(child)
		case spec.KindVector:
			resolved[a.Key] = constArg(a.Value.VectorValue())
		default:
			resolved[a.Key] = constArg([]float64{a.Value.ScalarValue()})
		}
	}
	resolved[fam.Parent] = linkedArg()

	ordered, missing := orderArgs(def, resolved)
	if len(missing) > 0 {
		return errors.NewMissingArguments(backendName, fam.Prior.Name, missing)
	}

	b.model.observed = &RV{
		Name:     m.Response.Name,
		Dist:     fam.Prior.Name,
		Shape:    1,
		Observed: m.Response.Data,
		def:      def,
		args:     ordered,
	}
	return nil
}

// Run executes the compiled graph. method mcmc draws posterior samples
// into a single-chain trace; method advi fits variational parameters with
// the same suppressed-variable metadata.
func (b *BackEnd) Run(ctx context.Context, opts backend.RunOptions) (trace.Result, error) {
	if b.spec == nil {
		return nil, fmt.Errorf("graph: no compiled model; call Build first")
	}
	method := opts.Method
	if method == "" {
		method = backend.MCMC
	}
	target := b.model.target()

	switch method {
	case backend.MCMC:
		samples := opts.Samples
		if samples <= 0 {
			samples = 1000
		}
		start := opts.Start
		if start == nil && opts.FindMAP {
			var err error
			start, err = sampler.FindMAP(target, nil)
			if err != nil {
				return nil, err
			}
		}
		b.logger.Info("sampling compiled graph",
			zap.Int("samples", samples), zap.Int("free_variables", len(target.Names)))
		draws, err := b.mcmc.Sample(ctx, target, sampler.MCMCOptions{
			Samples: samples,
			Start:   start,
			Init:    opts.Init,
			NInit:   opts.NInit,
		})
		if err != nil {
			return nil, err
		}

		chain := trace.NewChainTrace(0)
		for _, rv := range b.model.latents {
			rows := draws[rv.sampleName()]
			if dual := rv.DualName(); dual != "" {
				chain.Set(rv.Name, backtransformRows(rv, rows))
				chain.Set(dual, rows)
				continue
			}
			chain.Set(rv.Name, rows)
		}
		mt := trace.NewMultiTrace([]*trace.ChainTrace{chain}, b.model.suppressedVars(), b.spec)
		return &trace.MCMCResult{Trace: mt}, nil

	case backend.ADVI:
		b.logger.Info("fitting variational approximation",
			zap.Int("free_variables", len(target.Names)))
		params, err := b.vi.Fit(ctx, target, sampler.ADVIOptions{Iters: opts.NInit})
		if err != nil {
			return nil, err
		}
		out := make(map[string]trace.Variational, len(params))
		for name, mf := range params {
			out[name] = trace.Variational{Mean: mf.Mean, SD: mf.SD}
		}
		return &trace.ADVIResult{
			Params:     out,
			Suppressed: b.model.suppressedVars(),
			ModelSpec:  b.spec,
		}, nil

	default:
		return nil, fmt.Errorf("graph: unknown fitting method %q", method)
	}
}

// LinearPredictor evaluates the compiled accumulator at a point, before
// link transformation. Exposed for fitted-value inspection.
func (b *BackEnd) LinearPredictor(point sampler.Point) []float64 {
	if b.spec == nil {
		return nil
	}
	return b.model.evalMu(point, b.spec.NumObs())
}

// Varnames returns the latent variable names in creation order, duals
// included.
func (b *BackEnd) Varnames() []string {
	var names []string
	for _, rv := range b.model.latents {
		names = append(names, rv.Name)
		if dual := rv.DualName(); dual != "" {
			names = append(names, dual)
		}
	}
	return names
}

func orderArgs(def distDef, resolved map[string]argValue) ([]argValue, []string) {
	ordered := make([]argValue, 0, len(def.params))
	var missing []string
	for _, p := range def.params {
		v, ok := resolved[p]
		if !ok {
			missing = append(missing, p)
			continue
		}
		ordered = append(ordered, v)
	}
	return ordered, missing
}

// constantBounds extracts numeric interval bounds, when both are scalar
// constants.
func constantBounds(args []argValue) (lo, hi float64, ok bool) {
	if len(args) != 2 || args[0].constant == nil || args[1].constant == nil {
		return 0, 0, false
	}
	return args[0].constant[0], args[1].constant[0], true
}

func backtransformRows(rv *RV, rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = rv.constrained(sampler.Point{rv.sampleName(): row})
	}
	return out
}

func ncols(m *mat.Dense) int {
	_, c := m.Dims()
	return c
}
