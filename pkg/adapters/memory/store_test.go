package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

func TestStore_Contract(t *testing.T) {
	ports.RunStatePersistenceContract(t, NewStore())
}

func TestStore_RejectsEmptyID(t *testing.T) {
	store := NewStore()
	err := store.Save(context.Background(), &domain.ExecutionState{})
	require.Error(t, err)
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	store := NewStore()
	state := &domain.ExecutionState{
		ExecutionID: "e1",
		Status:      domain.StatusRunning,
		Context:     domain.Context{"k": "v"},
		RetryCounts: map[string]int{},
	}
	require.NoError(t, store.Save(context.Background(), state))

	first, err := store.Load(context.Background(), "e1")
	require.NoError(t, err)
	first.Context["k"] = "mutated"
	first.Status = domain.StatusFailed

	second, err := store.Load(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "v", second.Context["k"])
	assert.Equal(t, domain.StatusRunning, second.Status)
}
