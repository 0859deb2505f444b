package domain

import "time"

// RunMetadata describes a run in persisted records.
type RunMetadata struct {
	RunID         string    `json:"run_id"`
	Mode          Mode      `json:"mode"`
	Query         string    `json:"query"`
	Depth         string    `json:"depth,omitempty"`
	QueryType     string    `json:"query_type,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Model         string    `json:"model,omitempty"`
	Iterations    int       `json:"iterations"`
	MaxIterations int       `json:"max_iterations"`
	Steps         int       `json:"steps"`
	Status        Status    `json:"status"`
	Error         string    `json:"error,omitempty"`
	SubQuestions  []string  `json:"sub_questions"`
	SourceCount   int       `json:"source_count"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Record is the payload handed to the persistence sink at the end of a run.
// Interrupted runs produce records with partial data.
type Record struct {
	Query        string
	FinalOutput  string
	History      []CycleRecord
	Results      []SearchResult
	PendingItems []string
	Metadata     RunMetadata
}

// NewRecord builds a record from the last known state of a run.
func NewRecord(s *State, meta RunMetadata) Record {
	meta.RunID = s.RunID
	meta.Mode = s.Mode
	meta.Query = s.Task
	meta.Depth = s.Depth
	meta.QueryType = s.QueryType
	meta.Iterations = s.Iteration
	meta.MaxIterations = s.MaxIterations
	meta.Steps = s.Steps
	meta.Status = s.Status
	meta.SubQuestions = append([]string{}, s.PendingItems...)
	meta.SourceCount = len(UniqueSources(s.Results, 0))
	meta.StartedAt = s.StartedAt
	if meta.FinishedAt.IsZero() {
		meta.FinishedAt = time.Now().UTC()
	}
	return Record{
		Query:        s.Task,
		FinalOutput:  s.Output(),
		History:      append([]CycleRecord{}, s.History...),
		Results:      append([]SearchResult{}, s.Results...),
		PendingItems: append([]string{}, s.PendingItems...),
		Metadata:     meta,
	}
}

// RecordRef identifies a persisted record.
type RecordRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// RecordSummary is one entry of a record listing.
type RecordSummary struct {
	Name        string    `json:"name"`
	Query       string    `json:"query"`
	Mode        Mode      `json:"mode"`
	Status      Status    `json:"status"`
	Iterations  int       `json:"iterations"`
	SourceCount int       `json:"source_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// StoredRecord is a record read back from the sink.
type StoredRecord struct {
	Name     string         `json:"name"`
	Metadata RunMetadata    `json:"metadata"`
	Sources  []SearchResult `json:"sources"`
	Document string         `json:"document"`
}
