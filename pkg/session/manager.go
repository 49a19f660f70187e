package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quillflow/quillflow/internal/logging"
	"github.com/quillflow/quillflow/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes access per execution ID, guaranteeing that a
// single execution is never driven concurrently by two callers. It
// uses reference counting to garbage collect unused locks, and can
// additionally hold a distributed lock when the engine runs as
// multiple replicas over shared persistence.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.ExecutionLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking on top of in-process mutexes.
func WithLocker(locker ports.ExecutionLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for deferred errors (e.g. a failed
// distributed unlock).
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:  make(map[string]*lockEntry),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(executionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[executionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[executionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[executionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, executionID)
	}
}

// WithLock runs fn while holding exclusive access to executionID.
// The in-process mutex is always taken; the distributed lock is taken
// on top of it when configured.
func (m *Manager) WithLock(ctx context.Context, executionID string, fn func(ctx context.Context) error) error {
	entry := m.acquire(executionID)
	defer m.release(executionID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, executionID)
		if err != nil {
			return err
		}
		defer func() {
			if uerr := unlock(ctx); uerr != nil {
				m.logger.Warn("failed to release distributed lock", "execution_id", executionID, "err", uerr)
			}
		}()
	}

	return fn(ctx)
}
