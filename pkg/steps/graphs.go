package steps

import "github.com/rimraf-adi/socrates/pkg/domain"

// Graph names.
const (
	GraphRefine   = "refine"
	GraphResearch = "research"
)

// RefineGraph wires generate -> critique -> (generate | finalize).
// With useTools the draft is produced by the tool loop.
func RefineGraph(st *Steps, useTools bool) (*domain.Graph, error) {
	gen := st.Generate
	if useTools {
		gen = st.GenerateWithTools
	}
	return domain.NewGraph(GraphRefine, domain.StepGenerate, domain.StepFinalize,
		domain.Node{ID: domain.StepGenerate, Run: gen, Next: domain.StepCritique},
		domain.Node{ID: domain.StepCritique, Run: st.Critique, Route: RouteRefine,
			Targets: []string{domain.StepGenerate, domain.StepFinalize}},
		domain.Node{ID: domain.StepFinalize, Run: st.Finalize, Next: domain.End},
	)
}

var researchTargets = []string{domain.StepSearch, domain.StepEvaluateCoverage, domain.StepSynthesize}

// ResearchGraph wires plan -> (search -> analyze)* -> [evaluate_coverage] -> synthesize.
func ResearchGraph(st *Steps) (*domain.Graph, error) {
	return domain.NewGraph(GraphResearch, domain.StepPlan, domain.StepSynthesize,
		domain.Node{ID: domain.StepPlan, Run: st.Plan, Route: RouteResearch, Targets: researchTargets},
		domain.Node{ID: domain.StepSearch, Run: st.Search, Next: domain.StepAnalyze},
		domain.Node{ID: domain.StepAnalyze, Run: st.Analyze, Route: RouteResearch, Targets: researchTargets},
		domain.Node{ID: domain.StepEvaluateCoverage, Run: st.EvaluateCoverage, Route: RouteResearch, Targets: researchTargets},
		domain.Node{ID: domain.StepSynthesize, Run: st.Synthesize, Next: domain.End},
	)
}
