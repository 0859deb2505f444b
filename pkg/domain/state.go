package domain

import (
	"time"
)

// Mode selects which workflow a run executes.
type Mode string

const (
	ModeRefine   Mode = "refine"
	ModeResearch Mode = "research"
)

// Status tags the last completed step. It is for observability only;
// routing reads the substantive fields.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusGenerated   Status = "generated"
	StatusCritiqued   Status = "critiqued"
	StatusPlanned     Status = "planned"
	StatusSearched    Status = "searched"
	StatusAnalyzed    Status = "analyzed"
	StatusEvaluated   Status = "evaluated"
	StatusComplete    Status = "complete"    // Terminal
	StatusInterrupted Status = "interrupted" // Terminal, partial
	StatusFailed      Status = "failed"      // Terminal, partial
)

// Terminal reports whether no further steps may run against a State with this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusInterrupted || s == StatusFailed
}

// SearchResult is one hit returned by the search collaborator.
// Item is the index of the pending item the hit was collected for (-1 if none).
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Item    int    `json:"item"`
}

// CycleRecord is the trace of one completed work cycle.
type CycleRecord struct {
	Index      int    `json:"index"`
	Subject    string `json:"subject,omitempty"`
	Artifact   string `json:"artifact"`
	Evaluation string `json:"evaluation,omitempty"`
}

// State represents the snapshot of a run after its last merged step.
// Values are never mutated once published; Apply produces a new one.
type State struct {
	RunID string `json:"run_id"`
	Mode  Mode   `json:"mode"`

	// Task is the task or query text, fixed for the run.
	Task     string `json:"task"`
	FilePath string `json:"file_path,omitempty"`

	Depth     string `json:"depth,omitempty"`
	QueryType string `json:"query_type,omitempty"`
	// UseTools routes refine drafts through the tool loop, on resume too.
	UseTools bool `json:"use_tools,omitempty"`

	Iteration     int `json:"iteration"`
	MaxIterations int `json:"max_iterations"`

	CurrentOutput string `json:"current_output,omitempty"`
	Feedback      string `json:"feedback,omitempty"`
	FinalOutput   string `json:"final_output,omitempty"`
	SearchContext string `json:"search_context,omitempty"`

	History []CycleRecord  `json:"history"`
	Results []SearchResult `json:"results"`

	PendingItems []string `json:"pending_items"`
	Cursor       int      `json:"cursor"`

	CoverageScore  float64 `json:"coverage_score,omitempty"`
	CoveredThrough int     `json:"covered_through"`

	Status Status `json:"status"`

	// Next and Steps are owned by the runtime: the node to run next and the
	// number of steps merged so far.
	Next  string `json:"next,omitempty"`
	Steps int    `json:"steps"`

	StartedAt time.Time `json:"started_at"`

	// Sealed carries the encrypted snapshot when the checkpoint store seals
	// states at rest. It is empty on every state the engine works with.
	Sealed string `json:"sealed,omitempty"`
}

// NewState creates the initial snapshot for a run.
// A zero maxIterations leaves the budget to be decided by planning.
func NewState(runID string, mode Mode, task string, maxIterations int) *State {
	return &State{
		RunID:          runID,
		Mode:           mode,
		Task:           task,
		MaxIterations:  maxIterations,
		History:        []CycleRecord{},
		Results:        []SearchResult{},
		PendingItems:   []string{},
		CoveredThrough: -1,
		Status:         StatusStarting,
		StartedAt:      time.Now().UTC(),
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	c.History = append([]CycleRecord{}, s.History...)
	c.Results = append([]SearchResult{}, s.Results...)
	c.PendingItems = append([]string{}, s.PendingItems...)
	return &c
}

// Output returns the designated result: the final artifact if present,
// otherwise the latest produced one.
func (s *State) Output() string {
	if s.FinalOutput != "" {
		return s.FinalOutput
	}
	return s.CurrentOutput
}

// BudgetExhausted reports whether the cycle budget has been used up.
func (s *State) BudgetExhausted() bool {
	return s.Iteration >= s.MaxIterations
}

// HasPending reports whether unprocessed pending items remain.
func (s *State) HasPending() bool {
	return s.Cursor < len(s.PendingItems)
}

// CurrentItem returns the pending item at the cursor.
func (s *State) CurrentItem() (string, bool) {
	if !s.HasPending() {
		return "", false
	}
	return s.PendingItems[s.Cursor], true
}

// ResultsFor returns the hits collected for a given pending item, in collection order.
func (s *State) ResultsFor(item int) []SearchResult {
	var out []SearchResult
	for _, r := range s.Results {
		if r.Item == item {
			out = append(out, r)
		}
	}
	return out
}

// UniqueSources deduplicates results by URL keeping the first occurrence.
// A non-positive limit means no limit.
func UniqueSources(results []SearchResult, limit int) []SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
