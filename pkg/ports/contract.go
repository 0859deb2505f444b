package ports

import (
	"context"
	"testing"
	"time"

	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(runID, domain.ModeResearch, "what is a contract test", 6)
		state.PendingItems = []string{"a", "b"}
		state.Cursor = 1
		state.Iteration = 1
		state.History = []domain.CycleRecord{{Index: 1, Subject: "a", Artifact: "answer a"}}
		state.Results = []domain.SearchResult{{Title: "t", URL: "https://example.com", Snippet: "s", Item: 0}}
		state.Next = domain.StepSearch

		require.NoError(t, store.Save(ctx, runID, state), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Task, loaded.Task)
		assert.Equal(t, state.PendingItems, loaded.PendingItems)
		assert.Equal(t, state.Cursor, loaded.Cursor)
		assert.Equal(t, state.History, loaded.History)
		assert.Equal(t, state.Results, loaded.Results)
		assert.Equal(t, domain.StepSearch, loaded.Next)
	})

	t.Run("Save overwrites", func(t *testing.T) {
		state := domain.NewState(runID, domain.ModeRefine, "task", 2)
		state.CurrentOutput = "second"
		require.NoError(t, store.Save(ctx, runID, state))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.CurrentOutput)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runID, domain.NewState(runID, domain.ModeRefine, "task", 1)))

		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, id1, domain.NewState(id1, domain.ModeRefine, "task", 1))
		_ = store.Save(ctx, id2, domain.NewState(id2, domain.ModeRefine, "task", 1))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
