package policyopa

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins is the deterministic subset consent policies may use.
// Anything touching wall clocks, network, or randomness is excluded so
// re-evaluating a policy years later yields the same decision.
var allowedBuiltins = map[string]struct{}{
	"abs":            {},
	"array.concat":   {},
	"ceil":           {},
	"concat":         {},
	"contains":       {},
	"count":          {},
	"endswith":       {},
	"eq":             {},
	"equal":          {},
	"floor":          {},
	"format_int":     {},
	"gt":             {},
	"gte":            {},
	"json.marshal":   {},
	"json.unmarshal": {},
	"lower":          {},
	"lt":             {},
	"lte":            {},
	"max":            {},
	"min":            {},
	"neq":            {},
	"object.get":     {},
	"object.remove":  {},
	"object.union":   {},
	"replace":        {},
	"round":          {},
	"sort":           {},
	"split":          {},
	"sprintf":        {},
	"startswith":     {},
	"substring":      {},
	"sum":            {},
	"to_number":      {},
	"trim":           {},
	"trim_left":      {},
	"trim_right":     {},
	"upper":          {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
