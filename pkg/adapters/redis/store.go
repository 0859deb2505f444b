// Package redis implements the checkpoint store and the distributed run lock
// on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

const (
	// DefaultPrefix namespaces every key written by this package.
	DefaultPrefix = "socrates:run:"
	// DefaultTTL keeps checkpoints for a week.
	DefaultTTL = 7 * 24 * time.Hour
)

// Store implements ports.StateStore on Redis. Each run is a JSON string key
// with a TTL; a sorted set scored by expiry time (unix ms) indexes them for List.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL sets how long checkpoints live. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New connects to the Redis server at url (redis://...).
func New(url string, opts ...Option) (*Store, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(o), opts...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying client, for sharing with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save writes the state and refreshes its index entry.
func (s *Store) Save(ctx context.Context, runID string, state *domain.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	score := float64(1<<53 - 1)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).UnixMilli())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(runID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: runID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run %s: %w", runID, err)
	}
	return nil
}

// Load reads a state. Expired or unknown runs return domain.ErrRunNotFound.
func (s *Store) Load(ctx context.Context, runID string) (*domain.State, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}
	return &state, nil
}

// Delete removes a run and its index entry.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// List returns live run IDs. Expired index entries are pruned on the way.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune index: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}
