package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rimraf-adi/socrates/internal/logging"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/report"
	"github.com/spf13/afero"
)

// Files inside a record directory.
const (
	MetadataFile = "metadata.json"
	SourcesFile  = "sources.json"
	DocumentFile = "research.md"
	CyclesDir    = "iterations"
)

// Sink writes one directory per record under a base directory:
//
//	{base}/{YYYY-MM-DD}_{slug}_{ulid}/
//	    metadata.json
//	    sources.json
//	    research.md
//	    iterations/iteration_NN.md
type Sink struct {
	fs     afero.Fs
	base   string
	logger *slog.Logger
	now    func() time.Time
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithLogger sets the sink logger.
func WithLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for record names.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		s.now = now
	}
}

// NewSink creates a sink rooted at base.
func NewSink(fs afero.Fs, base string, opts ...SinkOption) *Sink {
	s := &Sink{
		fs:     fs,
		base:   base,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Base returns the base directory.
func (s *Sink) Base() string {
	return s.base
}

// Save writes rec under a fresh name. Partial records are fine.
func (s *Sink) Save(ctx context.Context, rec domain.Record) (domain.RecordRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.RecordRef{}, err
	}

	name := report.Name(rec.Query, s.now())
	dir := filepath.Join(s.base, name)

	if err := writeJSON(s.fs, filepath.Join(dir, MetadataFile), rec.Metadata); err != nil {
		return domain.RecordRef{}, err
	}
	if err := writeJSON(s.fs, filepath.Join(dir, SourcesFile), domain.UniqueSources(rec.Results, 0)); err != nil {
		return domain.RecordRef{}, err
	}
	if err := WriteFileAtomic(s.fs, filepath.Join(dir, DocumentFile), []byte(report.Document(rec))); err != nil {
		return domain.RecordRef{}, err
	}
	for _, c := range rec.History {
		path := filepath.Join(dir, CyclesDir, report.CycleFile(c.Index))
		if err := WriteFileAtomic(s.fs, path, []byte(report.Cycle(c))); err != nil {
			return domain.RecordRef{}, err
		}
	}

	s.logger.Debug("record written", "record", name, "cycles", len(rec.History))
	return domain.RecordRef{ID: name, Name: name, Location: dir}, nil
}

// List returns summaries of readable records, newest first.
func (s *Sink) List(ctx context.Context) ([]domain.RecordSummary, error) {
	entries, err := afero.ReadDir(s.fs, s.base)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.RecordSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.base, err)
	}

	out := make([]domain.RecordSummary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta domain.RunMetadata
		if err := readJSON(s.fs, filepath.Join(s.base, e.Name(), MetadataFile), &meta); err != nil {
			s.logger.Debug("skipping unreadable record", "record", e.Name(), "err", err)
			continue
		}
		out = append(out, report.Summary(e.Name(), meta))
	}
	report.SortNewest(out)
	return out, nil
}

// Get reads a record back.
func (s *Sink) Get(ctx context.Context, name string) (*domain.StoredRecord, error) {
	dir, err := s.recordDir(name)
	if err != nil {
		return nil, err
	}

	rec := &domain.StoredRecord{Name: name, Sources: []domain.SearchResult{}}
	if err := readJSON(s.fs, filepath.Join(dir, MetadataFile), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", name, err)
	}
	if err := readJSON(s.fs, filepath.Join(dir, SourcesFile), &rec.Sources); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read sources of %s: %w", name, err)
	}
	doc, err := afero.ReadFile(s.fs, filepath.Join(dir, DocumentFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read document of %s: %w", name, err)
	}
	rec.Document = string(doc)
	return rec, nil
}

// Delete removes a record directory.
func (s *Sink) Delete(ctx context.Context, name string) error {
	dir, err := s.recordDir(name)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	s.logger.Info("record deleted", "record", name)
	return nil
}

func (s *Sink) recordDir(name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: invalid record name %q", domain.ErrRecordNotFound, name)
	}
	dir := filepath.Join(s.base, name)
	info, err := s.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrRecordNotFound, name)
	}
	return dir, nil
}
