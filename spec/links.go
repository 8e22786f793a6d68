package spec

import (
	"fmt"
	"math"
)

// LinkFunc maps one element of the linear predictor onto the outcome
// distribution's natural parameter scale.
type LinkFunc func(float64) float64

// The fixed link registry. "logit" is the inverse-logit (sigmoid), applied
// to the predictor to produce a probability.
var links = map[string]LinkFunc{
	"identity": func(x float64) float64 { return x },
	"logit":    func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	"inverse":  func(x float64) float64 { return 1 / x },
	"log":      math.Log,
}

// ResolveLink returns the family's link function: LinkFunc if set
// directly, otherwise the named function from the fixed registry.
func (f *Family) ResolveLink() (LinkFunc, error) {
	if f.LinkFunc != nil {
		return f.LinkFunc, nil
	}
	fn, ok := links[f.Link]
	if !ok {
		return nil, fmt.Errorf("spec: unknown link function %q", f.Link)
	}
	return fn, nil
}

// LinkNames returns the names in the fixed link registry.
func LinkNames() []string {
	return []string{"identity", "logit", "inverse", "log"}
}
