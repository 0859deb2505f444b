package ports

import (
	"context"

	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Sink persists final run records under unique, timestamp-keyed names.
// Saving the same payload twice produces two records.
type Sink interface {
	Save(ctx context.Context, rec domain.Record) (domain.RecordRef, error)

	// List returns summaries, newest first.
	List(ctx context.Context) ([]domain.RecordSummary, error)

	// Get returns domain.ErrRecordNotFound for unknown names.
	Get(ctx context.Context, name string) (*domain.StoredRecord, error)

	Delete(ctx context.Context, name string) error
}
