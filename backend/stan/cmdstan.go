package stan

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CmdStan is a Compiler backed by a local CmdStan toolchain: generated
// program text is written to a scratch directory, built with the
// toolchain's make, and sampled by running the produced executable with a
// JSON data file, one invocation per chain.
type CmdStan struct {
	// Root is the CmdStan installation directory (the one containing the
	// toolchain makefile).
	Root string
	// Logger receives compile/sample progress; nop when nil.
	Logger *zap.Logger
}

// DiscoverCmdStan locates a CmdStan installation via the CMDSTAN
// environment variable.
func DiscoverCmdStan() (*CmdStan, error) {
	root := os.Getenv("CMDSTAN")
	if root == "" {
		return nil, fmt.Errorf("stan: CMDSTAN is not set")
	}
	fi, err := os.Stat(root)
	if err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("stan: CMDSTAN does not point at a directory: %q", root)
	}
	return &CmdStan{Root: root, Logger: zap.NewNop()}, nil
}

func (c *CmdStan) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Compile writes the program text and builds a model executable.
func (c *CmdStan) Compile(code string) (CompiledModel, error) {
	dir, err := os.MkdirTemp("", "fawn-stan-")
	if err != nil {
		return nil, fmt.Errorf("stan: scratch dir: %w", err)
	}
	modelPath := filepath.Join(dir, "model.stan")
	if err := os.WriteFile(modelPath, []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("stan: write model: %w", err)
	}

	exe := filepath.Join(dir, "model")
	c.logger().Info("building Stan executable", zap.String("model", modelPath))
	cmd := exec.Command("make", exe)
	cmd.Dir = c.Root
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("stan: cmdstan build failed: %w\n%s", err, out)
	}
	return &cmdStanModel{exe: exe, dir: dir, logger: c.logger()}, nil
}

type cmdStanModel struct {
	exe    string
	dir    string
	logger *zap.Logger
}

// Sample runs the model executable once per chain and parses the CmdStan
// CSV output into a flat chain-major RawFit.
func (m *cmdStanModel) Sample(ctx context.Context, data DataPayload, samples, chains int) (*RawFit, error) {
	dataPath := filepath.Join(m.dir, "data.json")
	blob, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("stan: encode data payload: %w", err)
	}
	if err := os.WriteFile(dataPath, blob, 0o644); err != nil {
		return nil, fmt.Errorf("stan: write data payload: %w", err)
	}

	draws := make(map[string][][]float64)
	for chain := 1; chain <= chains; chain++ {
		outPath := filepath.Join(m.dir, fmt.Sprintf("output-%d.csv", chain))
		cmd := exec.CommandContext(ctx, m.exe,
			"sample", "num_samples="+strconv.Itoa(samples),
			"random", "seed="+strconv.Itoa(chain),
			"data", "file="+dataPath,
			"output", "file="+outPath,
		)
		m.logger.Info("running Stan chain", zap.Int("chain", chain), zap.Int("samples", samples))
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("stan: chain %d failed: %w\n%s", chain, err, out)
		}

		f, err := os.Open(outPath)
		if err != nil {
			return nil, fmt.Errorf("stan: open chain output: %w", err)
		}
		header, rows, perr := parseStanCSV(f)
		f.Close()
		if perr != nil {
			return nil, fmt.Errorf("stan: parse chain %d output: %w", chain, perr)
		}
		for name, chainRows := range assembleDraws(header, rows) {
			draws[name] = append(draws[name], chainRows...)
		}
	}
	return &RawFit{Draws: draws, Chains: chains, Samples: samples}, nil
}

// parseStanCSV reads a CmdStan output CSV: '#'-prefixed comment lines,
// one header row, then one row of floats per draw.
func parseStanCSV(r io.Reader) ([]string, [][]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var rows [][]float64
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read draw row: %w", err)
		}
		row := make([]float64, len(record))
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parse value %q: %w", field, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// assembleDraws groups dotted CSV columns back into per-variable rows:
// columns "u_g.1", "u_g.2" become one variable "u_g" with two elements
// per draw, in column order.
func assembleDraws(header []string, rows [][]float64) map[string][][]float64 {
	var order []string
	cols := make(map[string][]int)
	for i, h := range header {
		name := h
		if dot := strings.IndexByte(h, '.'); dot >= 0 {
			name = h[:dot]
		}
		if _, seen := cols[name]; !seen {
			order = append(order, name)
		}
		cols[name] = append(cols[name], i)
	}

	out := make(map[string][][]float64, len(order))
	for _, name := range order {
		idx := cols[name]
		series := make([][]float64, len(rows))
		for r, row := range rows {
			vals := make([]float64, len(idx))
			for j, c := range idx {
				vals[j] = row[c]
			}
			series[r] = vals
		}
		out[name] = series
	}
	return out
}
