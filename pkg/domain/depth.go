package domain

import "strings"

// DepthPolicy parameterizes the shared router and the budget of a run.
// Fixed policies run a set number of cycles; expanding ones let coverage
// evaluation grow the queue and the budget up to MaxBudget.
type DepthPolicy struct {
	Name           string
	Budget         int
	ResultsPerItem int
	Expand         bool
	MaxBudget      int
}

const (
	DepthQuick      = "quick"
	DepthStandard   = "standard"
	DepthDeep       = "deep"
	DepthExhaustive = "exhaustive"
)

var depthPolicies = map[string]DepthPolicy{
	DepthQuick:      {Name: DepthQuick, Budget: 6, ResultsPerItem: 4, MaxBudget: 6},
	DepthStandard:   {Name: DepthStandard, Budget: 10, ResultsPerItem: 6, MaxBudget: 10},
	DepthDeep:       {Name: DepthDeep, Budget: 15, ResultsPerItem: 8, MaxBudget: 15},
	DepthExhaustive: {Name: DepthExhaustive, Budget: 20, ResultsPerItem: 8, Expand: true, MaxBudget: 30},
}

// IsDepth reports whether name is a known depth preset.
func IsDepth(name string) bool {
	_, ok := depthPolicies[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// LookupDepth returns the policy for a depth name. Unknown names map to standard.
func LookupDepth(name string) DepthPolicy {
	if p, ok := depthPolicies[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return depthPolicies[DepthStandard]
}

// FixedPolicy is the policy of the generator/critic loop: n cycles, no expansion.
func FixedPolicy(n int) DepthPolicy {
	return DepthPolicy{Name: "fixed", Budget: n, ResultsPerItem: 3, MaxBudget: n}
}
