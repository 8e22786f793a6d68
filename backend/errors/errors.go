// Package errors provides structured error values for the fawn back ends.
// It defines error codes and categories for build-time failures, with
// formatting for both plain error text and machine-parseable JSON. The
// back ends raise these synchronously during construction or Build; Run
// passes sampler-native failures through unmodified.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorCode is a unique code for a back-end error.
type ErrorCode string

const (
	// CodeUnknownDistribution: a prior references a distribution absent
	// from the active back end's vocabulary or mapping table (BLD001).
	CodeUnknownDistribution ErrorCode = "BLD001"
	// CodeMissingArguments: a distribution's mapping requires named
	// arguments the supplied prior does not provide (BLD002).
	CodeMissingArguments ErrorCode = "BLD002"
	// CodeMissingDependency: a back end's external compiler/sampler
	// dependency is unavailable at construction time (BLD003).
	CodeMissingDependency ErrorCode = "BLD003"
)

// ErrorCategory groups build errors by the stage that raised them.
type ErrorCategory string

const (
	// CategoryBuild covers failures while compiling a model spec.
	CategoryBuild ErrorCategory = "build"
	// CategoryConstruction covers failures creating a back-end instance.
	CategoryConstruction ErrorCategory = "construction"
)

// BuildError is a structured back-end error. A failed build leaves the
// back end's accumulators dirty; callers must Reset (or construct a fresh
// instance) before reuse.
type BuildError struct {
	// Code is the unique error code (e.g. "BLD001").
	Code ErrorCode `json:"code"`
	// Category is the stage that raised the error.
	Category ErrorCategory `json:"category"`
	// Backend names the back end that raised the error.
	Backend string `json:"backend"`
	// Message is the primary error message.
	Message string `json:"message"`
	// Distribution is the offending distribution name, if any.
	Distribution string `json:"distribution,omitempty"`
	// Missing lists missing mandatory argument names, if any.
	Missing []string `json:"missing,omitempty"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ToJSON renders the error for machine consumption.
func (e *BuildError) ToJSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// NewUnknownDistribution reports a distribution name that does not resolve
// in the given back end's vocabulary.
func NewUnknownDistribution(backend, dist string) *BuildError {
	return &BuildError{
		Code:         CodeUnknownDistribution,
		Category:     CategoryBuild,
		Backend:      backend,
		Distribution: dist,
		Message: fmt.Sprintf("the distribution %q was not found in the %s back end",
			dist, backend),
	}
}

// NewMissingArguments reports mandatory distribution arguments absent from
// a prior.
func NewMissingArguments(backend, dist string, missing []string) *BuildError {
	return &BuildError{
		Code:         CodeMissingArguments,
		Category:     CategoryBuild,
		Backend:      backend,
		Distribution: dist,
		Missing:      missing,
		Message: fmt.Sprintf("the following mandatory parameters of the %s distribution are missing: %s",
			dist, strings.Join(missing, ", ")),
	}
}

// NewMissingDependency reports an unavailable external dependency at
// back-end construction time.
func NewMissingDependency(backend, what string) *BuildError {
	return &BuildError{
		Code:     CodeMissingDependency,
		Category: CategoryConstruction,
		Backend:  backend,
		Message:  fmt.Sprintf("the %s back end requires %s, which is not available", backend, what),
	}
}
