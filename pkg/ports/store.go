package ports

import (
	"context"

	"github.com/rimraf-adi/socrates/pkg/domain"
)

// StateStore checkpoints the latest merged State of each run.
// Saves for the same run ID overwrite each other.
type StateStore interface {
	// Save persists the state for a given run ID.
	Save(ctx context.Context, runID string, state *domain.State) error

	// Load retrieves the state for a given run ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.State, error)

	// Delete removes the state for a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of stored runs.
	List(ctx context.Context) ([]string, error)
}
