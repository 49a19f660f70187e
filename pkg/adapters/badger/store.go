// Package badger persists execution state in an embedded Badger
// database, giving single-binary deployments durability without an
// external service.
package badger

import (
	"context"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"

	"github.com/quillflow/quillflow/pkg/domain"
)

const keyPrefix = "execution:"

// Store implements ports.StatePersistence over a Badger database.
type Store struct {
	db *badger.DB
}

// Open creates a store backed by a database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory creates an ephemeral store, mainly for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory badger: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing database handle.
func NewFromDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(executionID string) []byte {
	return []byte(keyPrefix + executionID)
}

// Save persists the state inside one transaction.
func (s *Store) Save(ctx context.Context, state *domain.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal execution state: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(state.ExecutionID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save to badger: %w", err)
	}
	return nil
}

// Load retrieves the state.
func (s *Store) Load(ctx context.Context, executionID string) (*domain.ExecutionState, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(executionID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, fmt.Errorf("%s: %w", executionID, domain.ErrExecutionNotFound)
		}
		return nil, fmt.Errorf("failed to load from badger: %w", err)
	}

	var state domain.ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution state: %w", err)
	}
	return &state, nil
}

// List scans the execution key space.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(k, keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return ids, nil
}
