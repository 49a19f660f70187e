package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

func newTestClient(t *testing.T) *backend.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return backend.NewClient(&backend.Options{Addr: mr.Addr()})
}

func TestStore_Contract(t *testing.T) {
	ports.RunStatePersistenceContract(t, NewFromClient(newTestClient(t)))
}

func TestStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewFromClient(client, WithPrefix("custom:"))

	plan := &domain.WorkflowPlan{
		ID: "p", Version: "1", EntryNodeID: "n",
		Nodes: map[string]domain.Node{"n": {ID: "n", Type: domain.NodeTypeEnd}},
	}
	state := domain.NewExecutionState("e1", plan, domain.Context{}, time.Now().UTC())
	require.NoError(t, store.Save(context.Background(), state))

	assert.True(t, mr.Exists("custom:e1"))
	assert.True(t, mr.Exists("custom:index"))
}

func TestStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewFromClient(client, WithTTL(time.Minute))

	plan := &domain.WorkflowPlan{
		ID: "p", Version: "1", EntryNodeID: "n",
		Nodes: map[string]domain.Node{"n": {ID: "n", Type: domain.NodeTypeEnd}},
	}
	require.NoError(t, store.Save(context.Background(), domain.NewExecutionState("e1", plan, domain.Context{}, time.Now().UTC())))

	assert.Greater(t, mr.TTL("quillflow:execution:e1"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(context.Background(), "e1")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestLocker_Contract(t *testing.T) {
	ports.RunLockerContract(t, NewLocker(newTestClient(t), "quillflow:"))
}

func TestLocker_ContextCancelStopsWaiting(t *testing.T) {
	locker := NewLocker(newTestClient(t), "quillflow:")

	unlock, err := locker.Lock(context.Background(), "exec-1")
	require.NoError(t, err)
	defer unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "exec-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_ReleaseIsHolderScoped(t *testing.T) {
	client := newTestClient(t)
	locker := NewLocker(client, "quillflow:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "exec-1")
	require.NoError(t, err)

	// Simulate a TTL handoff: another holder owns the key now.
	require.NoError(t, client.Set(ctx, "quillflow:lock:exec-1", "someone-else", 0).Err())
	require.NoError(t, unlock(ctx))

	val, err := client.Get(ctx, "quillflow:lock:exec-1").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val, "release must not delete another holder's lock")
}
