package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"testing"

	"github.com/rimraf-adi/socrates/pkg/adapters/memory"
	"github.com/rimraf-adi/socrates/pkg/domain"
	"github.com/rimraf-adi/socrates/pkg/persistence/middleware"
	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, middleware.KeySize)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sealedStore(t *testing.T, cfg middleware.EncryptionConfig, next *memory.Store) ports.StateStore {
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func researchState() *domain.State {
	s := domain.NewState("run-1", domain.ModeResearch, "how do tides work", 3)
	s.CurrentOutput = "draft about the moon"
	s.PendingItems = []string{"gravity", "orbits"}
	s.Results = []domain.SearchResult{{Title: "Tides", URL: "https://example.org/tides", Item: 0}}
	s.Iteration = 1
	s.Status = domain.StatusAnalyzed
	s.Steps = 4
	return s
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	store := sealedStore(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, underlying)

	original := researchState()
	require.NoError(t, store.Save(ctx, original.RunID, original))

	raw, err := underlying.Load(ctx, original.RunID)
	require.NoError(t, err)
	assert.NotEmpty(t, raw.Sealed)
	assert.Empty(t, raw.Task)
	assert.Empty(t, raw.CurrentOutput)
	assert.Empty(t, raw.Results)

	// Metadata stays readable for listing and terminal checks.
	assert.Equal(t, domain.StatusAnalyzed, raw.Status)
	assert.Equal(t, domain.ModeResearch, raw.Mode)
	assert.Equal(t, 4, raw.Steps)

	loaded, err := store.Load(ctx, original.RunID)
	require.NoError(t, err)
	assert.Equal(t, original.Task, loaded.Task)
	assert.Equal(t, original.CurrentOutput, loaded.CurrentOutput)
	assert.Equal(t, original.PendingItems, loaded.PendingItems)
	assert.Equal(t, original.Results, loaded.Results)
	assert.Empty(t, loaded.Sealed)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, ids)

	require.NoError(t, store.Delete(ctx, original.RunID))
	_, err = store.Load(ctx, original.RunID)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	oldStore := sealedStore(t, middleware.EncryptionConfig{ActiveKey: oldKey}, underlying)
	require.NoError(t, oldStore.Save(ctx, "run-1", researchState()))

	newStore := sealedStore(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	}, underlying)

	loaded, err := newStore.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "how do tides work", loaded.Task)

	// Saving again re-seals with the new key only.
	require.NoError(t, newStore.Save(ctx, "run-1", loaded))
	_, err = oldStore.Load(ctx, "run-1")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_RejectsClearCheckpoint(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(ctx, "run-1", researchState()))

	store := sealedStore(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, underlying)
	_, err := store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, middleware.ErrNotSealed)
}

func TestNewEncryptionMiddleware_InvalidKeys(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)

	k, err := middleware.ParseKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, k)

	k, err = middleware.ParseKey(" " + base64.StdEncoding.EncodeToString(key) + "\n")
	require.NoError(t, err)
	assert.Equal(t, key, k)

	_, err = middleware.ParseKey("not-a-key")
	assert.Error(t, err)
}

func TestChain_OrdersOutermostFirst(t *testing.T) {
	ctx := context.Background()
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next ports.StateStore) ports.StateStore {
			return &tagged{StateStore: next, name: name, order: &order}
		}
	}

	store := middleware.Chain(memory.NewStore(), tag("outer"), tag("inner"))
	require.NoError(t, store.Save(ctx, "run-1", researchState()))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type tagged struct {
	ports.StateStore
	name  string
	order *[]string
}

func (t *tagged) Save(ctx context.Context, runID string, s *domain.State) error {
	*t.order = append(*t.order, t.name)
	return t.StateStore.Save(ctx, runID, s)
}
