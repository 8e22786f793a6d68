// Package stan implements the program-text model compiler: it emits an
// abstract model specification as Stan source organized into the five
// blocks {data, transformed data, parameters, transformed parameters,
// model}, registers a name-keyed numeric data payload in parallel, hands
// both to an external compiler/sampler, and normalizes the raw output
// back into the common multi-chain trace shape.
package stan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fawn-stats/fawn/backend"
	"github.com/fawn-stats/fawn/backend/errors"
	"github.com/fawn-stats/fawn/spec"
	"github.com/fawn-stats/fawn/trace"
)

// backendName identifies this back end in error values.
const backendName = "stan"

// BackEnd compiles model specifications into Stan program text. Instances
// are single-threaded and non-reentrant.
type BackEnd struct {
	data                  []string
	transformedData       []string
	parameters            []string
	transformedParameters []string
	model                 []string

	payload  DataPayload
	mu       []string
	suppress []string

	code     string
	compiled CompiledModel
	spec     *spec.ModelSpec

	compiler Compiler
	logger   *zap.Logger
}

// Option configures a BackEnd at construction time.
type Option func(*BackEnd)

// WithCompiler injects the external compiler capability.
func WithCompiler(c Compiler) Option {
	return func(b *BackEnd) { b.compiler = c }
}

// WithLogger sets the build/run logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *BackEnd) { b.logger = l }
}

// New constructs a Stan back end. Without an injected compiler it looks
// for a local CmdStan toolchain; construction fails immediately when no
// compiler is available.
func New(opts ...Option) (*BackEnd, error) {
	b := &BackEnd{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if b.compiler == nil {
		cs, err := DiscoverCmdStan()
		if err != nil {
			return nil, errors.NewMissingDependency(backendName,
				"a Stan compiler (inject one with WithCompiler or set CMDSTAN)")
		}
		b.compiler = cs
	}
	b.Reset()
	return b, nil
}

// Reset clears the five statement lists, the data payload, and the
// running fitted-mean term list.
func (b *BackEnd) Reset() {
	b.data = nil
	b.transformedData = nil
	b.parameters = nil
	b.transformedParameters = nil
	b.model = nil
	b.payload = make(DataPayload)
	b.mu = nil
	b.suppress = nil
	b.code = ""
	b.compiled = nil
	b.spec = nil
}

// Build compiles the model specification into program text and hands it
// to the external compiler. An unmapped distribution or a prior missing a
// mandatory argument fails the build immediately; the statement lists
// stay dirty until the next Reset.
func (b *BackEnd) Build(m *spec.ModelSpec, reset bool) error {
	if reset {
		b.Reset()
	}
	n := m.NumObs()
	b.logger.Debug("building Stan program",
		zap.Int("terms", len(m.Terms())), zap.Int("observations", n))

	for _, t := range m.Terms() {
		if t.Grouped() {
			for _, lvl := range t.Levels {
				name := spec.LevelCoefName(t.Name, lvl.Level)
				b.addData(name, lvl.Data, n)
				if err := b.addParameters(name, t.Prior.Name, ncols(lvl.Data), t.Prior.Args); err != nil {
					return err
				}
			}
			continue
		}
		name := spec.CoefName(t.Name, t.Random)
		b.addData(name, t.Data, n)
		if err := b.addParameters(name, t.Prior.Name, ncols(t.Data), t.Prior.Args); err != nil {
			return err
		}
	}

	// Fitted mean over all registered product terms.
	b.transformedParameters = append(b.transformedParameters,
		fmt.Sprintf("vector[%d] yhat;", n),
		"yhat = "+strings.Join(b.mu, " + ")+";")
	b.suppress = append(b.suppress, "yhat")

	// Outcome.
	b.data = append(b.data, fmt.Sprintf("vector[%d] y;", n))
	b.parameters = append(b.parameters, "real<lower=0> sigma;")
	b.model = append(b.model, "y ~ normal(yhat, sigma);")
	b.payload["y"] = DataValue{Vector: m.Response.Data}

	b.code = b.assemble()
	b.logger.Debug("compiling Stan program", zap.Int("bytes", len(b.code)))

	compiled, err := b.compiler.Compile(b.code)
	if err != nil {
		return fmt.Errorf("stan: compile generated model: %w", err)
	}
	b.compiled = compiled
	b.spec = m
	return nil
}

// addData declares the companion data variable for one coefficient,
// registers its numeric values, and appends the coefficient's product
// term to the running fitted-mean list.
func (b *BackEnd) addData(name string, X *mat.Dense, n int) {
	cols := ncols(X)
	if cols == 1 {
		b.data = append(b.data, fmt.Sprintf("vector[%d] %s;", n, spec.DataName(name)))
	} else {
		b.data = append(b.data, fmt.Sprintf("matrix[%d, %d] %s;", n, cols, spec.DataName(name)))
	}
	b.payload[spec.DataName(name)] = squeeze(X)
	b.mu = append(b.mu, fmt.Sprintf("%s * %s", spec.DataName(name), name))
}

// addParameters declares one latent parameter and its sampling statement,
// expanding nested hyperpriors depth-first: a hyperprior bound to
// argument key of a parameter named P becomes its own scalar parameter
// named P_key, and its name is substituted into the parent's argument
// list.
func (b *BackEnd) addParameters(name, distName string, nCols int, args []spec.NamedArg) error {
	kwargs := make(map[string]string, len(args))
	for _, a := range args {
		if a.Value.Kind() == spec.KindPrior {
			hyper := a.Value.PriorValue()
			child := spec.ChildName(name, a.Key)
			if err := b.addParameters(child, hyper.Name, 1, hyper.Args); err != nil {
				return err
			}
			kwargs[a.Key] = child
			continue
		}
		kwargs[a.Key] = renderArg(a.Value)
	}

	term, bounds, err := mapDist(distName, kwargs)
	if err != nil {
		return err
	}

	stanPar := "real"
	if nCols > 1 {
		stanPar = fmt.Sprintf("vector[%d]", nCols)
	}
	b.parameters = append(b.parameters, fmt.Sprintf("%s%s %s;", stanPar, bounds, name))
	b.model = append(b.model, fmt.Sprintf("%s ~ %s;", name, term))
	return nil
}

// assemble renders the five blocks in fixed order into one program text.
func (b *BackEnd) assemble() string {
	blocks := []struct {
		name  string
		stmts []string
	}{
		{"data", b.data},
		{"transformed data", b.transformedData},
		{"parameters", b.parameters},
		{"transformed parameters", b.transformedParameters},
		{"model", b.model},
	}

	var sb strings.Builder
	for _, bl := range blocks {
		sb.WriteString(bl.name)
		sb.WriteString(" {\n")
		for _, s := range bl.stmts {
			sb.WriteString("\t")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
		sb.WriteString("}\n")
	}
	return sb.String()
}

// ModelCode returns the assembled program text of the last Build.
func (b *BackEnd) ModelCode() string { return b.code }

// Payload returns the data payload registered by the last Build.
func (b *BackEnd) Payload() DataPayload { return b.payload }

// Run invokes the compiled sampler and converts its raw output into the
// normalized multi-chain trace: one sub-trace per chain, sub-trace i
// holding each variable's draws [i*samples, (i+1)*samples).
func (b *BackEnd) Run(ctx context.Context, opts backend.RunOptions) (trace.Result, error) {
	if b.compiled == nil {
		return nil, fmt.Errorf("stan: no compiled model; call Build first")
	}
	if opts.Method != "" && opts.Method != backend.MCMC {
		return nil, fmt.Errorf("stan: unsupported fitting method %q", opts.Method)
	}
	samples := opts.Samples
	if samples <= 0 {
		samples = 1000
	}
	chains := opts.Chains
	if chains <= 0 {
		chains = 1
	}

	b.logger.Info("sampling compiled Stan model",
		zap.Int("samples", samples), zap.Int("chains", chains))
	fit, err := b.compiled.Sample(ctx, b.payload, samples, chains)
	if err != nil {
		return nil, err
	}
	return b.convertFit(fit)
}

// convertFit slices the raw flat draw arrays into per-chain traces.
func (b *BackEnd) convertFit(fit *RawFit) (trace.Result, error) {
	names := make([]string, 0, len(fit.Draws))
	for name := range fit.Draws {
		names = append(names, name)
	}
	sort.Strings(names)

	chains := make([]*trace.ChainTrace, 0, fit.Chains)
	for i := 0; i < fit.Chains; i++ {
		ct := trace.NewChainTrace(i)
		lo, hi := i*fit.Samples, (i+1)*fit.Samples
		for _, name := range names {
			rows := fit.Draws[name]
			if hi > len(rows) {
				return nil, fmt.Errorf("stan: variable %q has %d draws, expected %d chains x %d samples",
					name, len(rows), fit.Chains, fit.Samples)
			}
			ct.Set(name, rows[lo:hi])
		}
		chains = append(chains, ct)
	}
	mt := trace.NewMultiTrace(chains, b.suppress, b.spec)
	return &trace.MCMCResult{Trace: mt}, nil
}

// squeeze converts a design matrix into a payload value, flattening
// single-column matrices to plain vectors.
func squeeze(X *mat.Dense) DataValue {
	r, c := X.Dims()
	if c == 1 {
		v := make([]float64, r)
		for i := 0; i < r; i++ {
			v[i] = X.At(i, 0)
		}
		return DataValue{Vector: v}
	}
	m := make([][]float64, r)
	for i := 0; i < r; i++ {
		m[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			m[i][j] = X.At(i, j)
		}
	}
	return DataValue{Matrix: m}
}

func ncols(m *mat.Dense) int {
	_, c := m.Dims()
	return c
}
