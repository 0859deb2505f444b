package file_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rimraf-adi/socrates/pkg/adapters/file"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() domain.Record {
	return domain.Record{
		Query:        "Explain photosynthesis",
		FinalOutput:  "# Photosynthesis\n\nLight becomes sugar.",
		PendingItems: []string{"light reactions", "calvin cycle"},
		History: []domain.CycleRecord{
			{Index: 1, Subject: "light reactions", Artifact: "ATP and NADPH"},
			{Index: 2, Subject: "calvin cycle", Artifact: "carbon fixation"},
		},
		Results: []domain.SearchResult{
			{Title: "A", URL: "https://a", Item: 0},
			{Title: "A dup", URL: "https://a", Item: 1},
			{Title: "B", URL: "https://b", Item: 1},
		},
		Metadata: domain.RunMetadata{
			RunID:      "run-1",
			Mode:       domain.ModeResearch,
			Query:      "Explain photosynthesis",
			Status:     domain.StatusComplete,
			Iterations: 2,
		},
	}
}

func TestSink_SaveWritesRecordLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	sink := file.NewSink(fs, "/data", file.WithClock(func() time.Time { return now }))

	ref, err := sink.Save(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref.Name, "2026-10-16_explain-photosynthesis_"), ref.Name)
	assert.Equal(t, filepath.Join("/data", ref.Name), ref.Location)

	for _, f := range []string{file.MetadataFile, file.SourcesFile, file.DocumentFile, "iterations/iteration_01.md", "iterations/iteration_02.md"} {
		ok, err := afero.Exists(fs, filepath.Join(ref.Location, f))
		require.NoError(t, err)
		assert.True(t, ok, f)
	}

	raw, err := afero.ReadFile(fs, filepath.Join(ref.Location, file.SourcesFile))
	require.NoError(t, err)
	var sources []domain.SearchResult
	require.NoError(t, json.Unmarshal(raw, &sources))
	assert.Len(t, sources, 2)

	cycle, err := afero.ReadFile(fs, filepath.Join(ref.Location, "iterations/iteration_02.md"))
	require.NoError(t, err)
	assert.Contains(t, string(cycle), "carbon fixation")
}

func TestSink_IdenticalPayloadsNeverCollide(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	sink := file.NewSink(fs, "/data", file.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	first, err := sink.Save(ctx, sampleRecord())
	require.NoError(t, err)
	second, err := sink.Save(ctx, sampleRecord())
	require.NoError(t, err)
	assert.NotEqual(t, first.Name, second.Name)

	list, err := sink.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Name, list[0].Name, "newest first")
	assert.Equal(t, "Explain photosynthesis", list[0].Query)
}

func TestSink_GetAndDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := file.NewSink(fs, "/data")
	ctx := context.Background()

	ref, err := sink.Save(ctx, sampleRecord())
	require.NoError(t, err)

	got, err := sink.Get(ctx, ref.Name)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.Metadata.RunID)
	assert.Len(t, got.Sources, 2)
	assert.Contains(t, got.Document, "Light becomes sugar.")

	require.NoError(t, sink.Delete(ctx, ref.Name))
	_, err = sink.Get(ctx, ref.Name)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestSink_RejectsTraversal(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/secret/keep.txt", []byte("x"), 0o644))
	sink := file.NewSink(fs, "/data/records")
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "../../secret", "a/b", `..\secret`} {
		assert.ErrorIs(t, sink.Delete(ctx, name), domain.ErrRecordNotFound, name)
		_, err := sink.Get(ctx, name)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound, name)
	}
	ok, _ := afero.Exists(fs, "/secret/keep.txt")
	assert.True(t, ok)
}

func TestSink_PartialRecord(t *testing.T) {
	sink := file.NewSink(afero.NewMemMapFs(), "/data")
	rec := domain.Record{
		Query:    "Explain photosynthesis",
		Metadata: domain.RunMetadata{Status: domain.StatusInterrupted, Error: "run interrupted: context canceled"},
	}

	ref, err := sink.Save(context.Background(), rec)
	require.NoError(t, err)
	got, err := sink.Get(context.Background(), ref.Name)
	require.NoError(t, err)
	assert.Empty(t, got.Sources)
	assert.Contains(t, got.Document, "stopped before producing a result")
}

func TestSink_ListEmptyBase(t *testing.T) {
	list, err := file.NewSink(afero.NewMemMapFs(), "/nowhere").List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, file.NewStore(afero.NewMemMapFs(), "/runs"))
}

func TestStore_RejectsBadIDs(t *testing.T) {
	store := file.NewStore(afero.NewMemMapFs(), "/runs")
	assert.Error(t, store.Save(context.Background(), "../x", domain.NewState("x", domain.ModeRefine, "t", 1)))
	_, err := store.Load(context.Background(), "../x")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestWriteFileAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, file.WriteFileAtomic(fs, "/a/b/c.txt", []byte("one")))
	require.NoError(t, file.WriteFileAtomic(fs, "/a/b/c.txt", []byte("two")))

	data, err := afero.ReadFile(fs, "/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := afero.ReadDir(fs, "/a/b")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSink_ListNewestFirstWithinADay(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	sink := file.NewSink(fs, "/records", file.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	older := sampleRecord()
	older.Query = "zebra older"
	olderRef, err := sink.Save(ctx, older)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	newer := sampleRecord()
	newer.Query = "apple newer"
	newerRef, err := sink.Save(ctx, newer)
	require.NoError(t, err)

	list, err := sink.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newerRef.Name, list[0].Name)
	assert.Equal(t, olderRef.Name, list[1].Name)
}
