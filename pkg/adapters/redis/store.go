// Package redis persists execution state in Redis and provides the
// distributed execution lock for multi-replica deployments.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"

	"github.com/quillflow/quillflow/pkg/domain"
)

// Store implements ports.StatePersistence using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets an expiration for execution records. Zero (the default)
// keeps them forever, matching the append-only audit requirement;
// a TTL is only appropriate for ephemeral environments.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for execution records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "quillflow:execution:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(executionID string) string {
	return s.prefix + executionID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the state and registers it in the execution index.
func (s *Store) Save(ctx context.Context, state *domain.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal execution state: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(state.ExecutionID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), state.ExecutionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the state from Redis.
func (s *Store) Load(ctx context.Context, executionID string) (*domain.ExecutionState, error) {
	val, err := s.client.Get(ctx, s.key(executionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, fmt.Errorf("%s: %w", executionID, domain.ErrExecutionNotFound)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.ExecutionState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution state: %w", err)
	}
	return &state, nil
}

// List returns the indexed execution IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return ids, nil
}
