package domain

// Step names shared by the graphs, the routers and the observers.
const (
	StepGenerate         = "generate"
	StepCritique         = "critique"
	StepFinalize         = "finalize"
	StepPlan             = "plan"
	StepSearch           = "search"
	StepAnalyze          = "analyze"
	StepEvaluateCoverage = "evaluate_coverage"
	StepSynthesize       = "synthesize"
)

// End is the terminal marker returned by routes.
const End = "__end__"

// Query types recognised by planning and synthesis.
const (
	QueryFactual     = "factual"
	QueryComparative = "comparative"
	QueryExploratory = "exploratory"
	QueryTechnical   = "technical"
	QueryHowTo       = "how-to"
	QueryOpinion     = "opinion"
	QueryGeneral     = "general"
)
