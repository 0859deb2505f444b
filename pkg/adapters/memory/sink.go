package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/report"
)

// Sink implements ports.Sink in memory. Records are composed exactly as the
// file sink composes them, which makes it a drop-in for tests and for
// servers that must not touch the disk.
type Sink struct {
	mu      sync.RWMutex
	records map[string]domain.StoredRecord
	order   []string
	now     func() time.Time
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithClock overrides the time source used for record names.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		s.now = now
	}
}

// NewSink creates an empty sink.
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{
		records: make(map[string]domain.StoredRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores the record under a fresh unique name.
func (s *Sink) Save(ctx context.Context, rec domain.Record) (domain.RecordRef, error) {
	name := report.Name(rec.Query, s.now())
	stored := domain.StoredRecord{
		Name:     name,
		Metadata: rec.Metadata,
		Sources:  domain.UniqueSources(rec.Results, 0),
		Document: report.Document(rec),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = stored
	s.order = append(s.order, name)
	return domain.RecordRef{ID: name, Name: name, Location: "memory://" + name}, nil
}

// List returns summaries, newest first.
func (s *Sink) List(ctx context.Context) ([]domain.RecordSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RecordSummary, 0, len(s.records))
	for _, name := range s.order {
		if rec, ok := s.records[name]; ok {
			out = append(out, report.Summary(name, rec.Metadata))
		}
	}
	report.SortNewest(out)
	return out, nil
}

// Get returns a stored record.
func (s *Sink) Get(ctx context.Context, name string) (*domain.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, name)
	}
	return &rec, nil
}

// Delete removes a record.
func (s *Sink) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, name)
	}
	delete(s.records, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Records returns the raw records saved so far, oldest first.
func (s *Sink) Records() []domain.StoredRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StoredRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.records[name])
	}
	return out
}
