package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/rimraf-adi/socrates/pkg/adapters/memory"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunStateStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	s := domain.NewState("r1", domain.ModeResearch, "q", 3)
	s.PendingItems = []string{"a"}
	require.NoError(t, store.Save(ctx, "r1", s))

	s.PendingItems[0] = "mutated"
	loaded, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, loaded.PendingItems)
}

func TestMemorySink(t *testing.T) {
	sink := memory.NewSink()
	ctx := context.Background()
	rec := domain.Record{
		Query:       "Explain photosynthesis",
		FinalOutput: "Plants turn light into sugar.",
		Results:     []domain.SearchResult{{Title: "A", URL: "https://a"}},
		Metadata:    domain.RunMetadata{Query: "Explain photosynthesis", Status: domain.StatusComplete},
	}

	first, err := sink.Save(ctx, rec)
	require.NoError(t, err)
	second, err := sink.Save(ctx, rec)
	require.NoError(t, err)
	assert.NotEqual(t, first.Name, second.Name)

	list, err := sink.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Name, list[0].Name)

	got, err := sink.Get(ctx, first.Name)
	require.NoError(t, err)
	assert.Contains(t, got.Document, "Plants turn light into sugar.")
	assert.Len(t, got.Sources, 1)

	require.NoError(t, sink.Delete(ctx, first.Name))
	_, err = sink.Get(ctx, first.Name)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.ErrorIs(t, sink.Delete(ctx, first.Name), domain.ErrRecordNotFound)
}

func TestMemorySink_ListNewestFirstWithinADay(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	sink := memory.NewSink(memory.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	older, err := sink.Save(ctx, domain.Record{Query: "zebra older"})
	require.NoError(t, err)
	now = now.Add(time.Hour)
	newer, err := sink.Save(ctx, domain.Record{Query: "apple newer"})
	require.NoError(t, err)

	list, err := sink.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{newer.Name, older.Name}, []string{list[0].Name, list[1].Name})
}
