package steps

import "github.com/rimraf-adi/socrates/pkg/domain"

// Decide is the routing policy shared by both workflows. It is pure: the
// same State and policy always give the same step.
//
// Refine runs collapse to "generate while budget remains, else finalize".
// Research runs search while items remain and budget allows, evaluate
// coverage when the policy expands and there are findings newer than the
// last evaluation, and synthesize otherwise.
func Decide(p domain.DepthPolicy, s *domain.State) string {
	if s.Mode == domain.ModeRefine {
		if s.Iteration < p.Budget && !s.BudgetExhausted() {
			return domain.StepGenerate
		}
		return domain.StepFinalize
	}

	switch {
	case s.HasPending() && !s.BudgetExhausted():
		return domain.StepSearch
	case p.Expand && !s.BudgetExhausted() && s.Cursor > s.CoveredThrough:
		return domain.StepEvaluateCoverage
	default:
		return domain.StepSynthesize
	}
}

// RouteRefine routes a refine run under a fixed budget of MaxIterations.
func RouteRefine(s *domain.State) string {
	return Decide(domain.FixedPolicy(s.MaxIterations), s)
}

// RouteResearch routes a research run under the policy of its depth.
func RouteResearch(s *domain.State) string {
	return Decide(domain.LookupDepth(s.Depth), s)
}
