package stan

import (
	"strconv"
	"strings"

	"github.com/fawn-stats/fawn/backend/errors"
	"github.com/fawn-stats/fawn/spec"
)

// stanDist is one entry of the static mapping from the graph back end's
// distribution vocabulary to Stan: the Stan distribution name, the
// positional argument list (a "#" prefix marks a placeholder bound to a
// named prior argument; anything else is a fixed literal), and an
// optional value-domain bound annotation appended to the parameter
// declaration.
type stanDist struct {
	name   string
	args   []string
	bounds string
}

var stanDists = map[string]stanDist{
	"Normal":     {name: "normal", args: []string{"#mu", "#sd"}},
	"Cauchy":     {name: "cauchy", args: []string{"#alpha", "#beta"}},
	"HalfNormal": {name: "normal", args: []string{"0", "#sd"}, bounds: "<lower=0>"},
	"HalfCauchy": {name: "cauchy", args: []string{"0", "#beta"}, bounds: "<lower=0>"},
}

// mapDist translates a distribution name and its resolved keyword
// arguments into a Stan call term plus the declaration bounds. Lookup
// failure and missing mandatory arguments are hard build errors.
func mapDist(dist string, kwargs map[string]string) (term, bounds string, err error) {
	sd, ok := stanDists[dist]
	if !ok {
		return "", "", errors.NewUnknownDistribution(backendName, dist)
	}

	var missing []string
	for _, a := range sd.args {
		if !strings.HasPrefix(a, "#") {
			continue
		}
		if _, ok := kwargs[a[1:]]; !ok {
			missing = append(missing, a[1:])
		}
	}
	if len(missing) > 0 {
		return "", "", errors.NewMissingArguments(backendName, dist, missing)
	}

	rendered := make([]string, len(sd.args))
	for i, a := range sd.args {
		if strings.HasPrefix(a, "#") {
			rendered[i] = kwargs[a[1:]]
		} else {
			rendered[i] = a
		}
	}
	return sd.name + "(" + strings.Join(rendered, ", ") + ")", sd.bounds, nil
}

// renderArg renders a numeric prior argument as a Stan literal.
// Array-valued arguments are coerced to a plain numeric literal via their
// first element.
func renderArg(v spec.ArgValue) string {
	switch v.Kind() {
	case spec.KindVector:
		vals := v.VectorValue()
		if len(vals) == 0 {
			return "0"
		}
		return formatFloat(vals[0])
	default:
		return formatFloat(v.ScalarValue())
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
