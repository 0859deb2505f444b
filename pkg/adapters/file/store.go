package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/spf13/afero"
)

// Store implements ports.StateStore with one JSON file per run.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore creates a checkpoint store in dir.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) path(runID string) (string, error) {
	if !validName(runID) {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.dir, runID+".json"), nil
}

// Save writes the state atomically.
func (s *Store) Save(ctx context.Context, runID string, state *domain.State) error {
	path, err := s.path(runID)
	if err != nil {
		return err
	}
	return writeJSON(s.fs, path, state)
}

// Load reads the state of a run.
func (s *Store) Load(ctx context.Context, runID string) (*domain.State, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRunNotFound, err)
	}
	var state domain.State
	if err := readJSON(s.fs, path, &state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &state, nil
}

// Delete removes the checkpoint. Unknown runs are not an error.
func (s *Store) Delete(ctx context.Context, runID string) error {
	path, err := s.path(runID)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// List returns stored run IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
