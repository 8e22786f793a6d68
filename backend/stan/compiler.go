package stan

import (
	"context"
	"encoding/json"
)

// DataValue is one entry of the data payload handed to the external
// sampler: either a vector or a matrix. Exactly one field is set.
type DataValue struct {
	Vector []float64
	Matrix [][]float64
}

// MarshalJSON renders the value in CmdStan's JSON data format.
func (v DataValue) MarshalJSON() ([]byte, error) {
	if v.Matrix != nil {
		return json.Marshal(v.Matrix)
	}
	return json.Marshal(v.Vector)
}

// DataPayload is the name-keyed numeric data registered alongside the
// generated program text.
type DataPayload map[string]DataValue

// RawFit is the external sampler's raw output: per variable, a flat array
// of length Chains*Samples rows, chain-major (chain i occupies rows
// [i*Samples, (i+1)*Samples)).
type RawFit struct {
	Draws   map[string][][]float64
	Chains  int
	Samples int
}

// CompiledModel is an executable sampler bound to one generated program.
type CompiledModel interface {
	Sample(ctx context.Context, data DataPayload, samples, chains int) (*RawFit, error)
}

// Compiler turns generated program text into an executable sampler. The
// back end treats it as an opaque, blocking external capability.
type Compiler interface {
	Compile(code string) (CompiledModel, error)
}
