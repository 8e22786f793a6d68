package spec

// Variable naming shared by both back ends. The derived names are part of
// the external interface: generated program text is hand-inspected against
// them, so both back ends must produce byte-identical names for the same
// spec.

// CoefName returns the coefficient variable name for a term: "u_<term>"
// for random effects, "b_<term>" otherwise.
func CoefName(term string, random bool) string {
	if random {
		return "u_" + term
	}
	return "b_" + term
}

// LevelCoefName returns the coefficient name for one level of a grouped
// random effect.
func LevelCoefName(term, level string) string {
	return "u_" + term + "_" + level
}

// DataName returns the companion data-variable name for a coefficient.
func DataName(name string) string {
	return name + "_data"
}

// ChildName derives the label of a hyperprior parameter from its parent
// label and the argument key it is bound to.
func ChildName(parent, key string) string {
	return parent + "_" + key
}
