package domain

import "fmt"

// Update is the partial result of a step. Nil pointers and empty slices mean
// "unchanged"; Append* fields extend the append-only collections.
type Update struct {
	Status  Status
	Message string

	CurrentOutput *string
	Feedback      *string
	FinalOutput   *string
	SearchContext *string
	QueryType     *string
	Depth         *string

	Iteration     *int
	MaxIterations *int
	Cursor        *int

	CoverageScore  *float64
	CoveredThrough *int

	// PendingItems replaces the queue. Only legal before any item is consumed.
	PendingItems  []string
	AppendPending []string
	AppendHistory []CycleRecord
	AppendResults []SearchResult
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Apply merges u onto s and returns a new State. s is left untouched.
// Updates that would break the snapshot invariants are rejected with ErrInvariant.
func Apply(s *State, u Update) (*State, error) {
	if s.Status.Terminal() {
		return nil, fmt.Errorf("%w: state is terminal (%s)", ErrInvariant, s.Status)
	}

	next := s.Clone()

	if u.PendingItems != nil {
		if s.Cursor != 0 || s.Iteration != 0 {
			return nil, fmt.Errorf("%w: pending queue replaced after consumption started", ErrInvariant)
		}
		next.PendingItems = append([]string{}, u.PendingItems...)
	}
	next.PendingItems = append(next.PendingItems, u.AppendPending...)
	next.History = append(next.History, u.AppendHistory...)
	next.Results = append(next.Results, u.AppendResults...)

	if u.Iteration != nil {
		if *u.Iteration < s.Iteration {
			return nil, fmt.Errorf("%w: iteration decreased from %d to %d", ErrInvariant, s.Iteration, *u.Iteration)
		}
		next.Iteration = *u.Iteration
	}
	if cycles := next.Iteration - s.Iteration; cycles != len(u.AppendHistory) {
		return nil, fmt.Errorf("%w: %d cycles completed but %d history records appended", ErrInvariant, cycles, len(u.AppendHistory))
	}

	if u.MaxIterations != nil {
		if *u.MaxIterations < s.MaxIterations {
			return nil, fmt.Errorf("%w: budget shrunk from %d to %d", ErrInvariant, s.MaxIterations, *u.MaxIterations)
		}
		next.MaxIterations = *u.MaxIterations
	}

	if u.Cursor != nil {
		if *u.Cursor < s.Cursor {
			return nil, fmt.Errorf("%w: cursor moved back from %d to %d", ErrInvariant, s.Cursor, *u.Cursor)
		}
		next.Cursor = *u.Cursor
	}
	if next.Cursor > len(next.PendingItems) {
		return nil, fmt.Errorf("%w: cursor %d beyond %d pending items", ErrInvariant, next.Cursor, len(next.PendingItems))
	}

	if u.CurrentOutput != nil {
		next.CurrentOutput = *u.CurrentOutput
	}
	if u.Feedback != nil {
		next.Feedback = *u.Feedback
	}
	if u.FinalOutput != nil {
		next.FinalOutput = *u.FinalOutput
	}
	if u.SearchContext != nil {
		next.SearchContext = *u.SearchContext
	}
	if u.QueryType != nil {
		next.QueryType = *u.QueryType
	}
	if u.Depth != nil {
		next.Depth = *u.Depth
	}
	if u.CoverageScore != nil {
		next.CoverageScore = *u.CoverageScore
	}
	if u.CoveredThrough != nil {
		next.CoveredThrough = *u.CoveredThrough
	}
	if u.Status != "" {
		next.Status = u.Status
	}

	return next, nil
}
