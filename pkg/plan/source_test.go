package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow/pkg/domain"
)

func TestFSSource(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	// Filenames are irrelevant; plans are keyed by declared identity.
	write("anything.yaml", minimalYAML)
	write("second.yml", `
id: minimal
version: v2
entry_node_id: only
nodes:
  - id: only
    type: end
`)
	write("notes.txt", "not a plan")
	write("broken.yaml", "][")

	source := NewFSSource(dir)

	t.Run("GetPlan", func(t *testing.T) {
		raw, err := source.GetPlan("minimal", "v1")
		require.NoError(t, err)
		assert.Contains(t, string(raw), "entry_node_id: only")
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := source.GetPlan("minimal", "v9")
		assert.ErrorIs(t, err, domain.ErrPlanNotFound)
	})

	t.Run("ListPlans", func(t *testing.T) {
		refs, err := source.ListPlans()
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "v1", refs[0].Version)
		assert.Equal(t, "v2", refs[1].Version)
	})

	t.Run("RescansOnEveryCall", func(t *testing.T) {
		write("third.yaml", `
id: late
version: v1
entry_node_id: only
nodes:
  - id: only
    type: end
`)
		raw, err := source.GetPlan("late", "v1")
		require.NoError(t, err)
		assert.NotEmpty(t, raw)
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := NewFSSource(filepath.Join(dir, "nope")).ListPlans()
		assert.Error(t, err)
	})
}

func TestMemorySource_Isolation(t *testing.T) {
	source := NewMemorySource()
	original := []byte("id: x")
	source.Put("x", "v1", original)

	original[0] = 'X'
	raw, err := source.GetPlan("x", "v1")
	require.NoError(t, err)
	assert.Equal(t, "id: x", string(raw))

	// Returned bytes are a copy as well.
	raw[0] = 'Y'
	again, _ := source.GetPlan("x", "v1")
	assert.Equal(t, "id: x", string(again))
}
