package facade

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/model"
)

func TestRecentIndex_ObserveThenGet(t *testing.T) {
	idx := newRecentIndex()
	mem := model.Memory{ID: uuid.New(), Content: "remember this"}
	idx.observe(mem)

	got, ok := idx.get(mem.ID)
	require.True(t, ok)
	require.Equal(t, mem.Content, got.Content)
}

func TestRecentIndex_GetMissingReturnsFalse(t *testing.T) {
	idx := newRecentIndex()
	_, ok := idx.get(uuid.New())
	require.False(t, ok)
}

func TestRecentIndex_RemoveEvictsEntry(t *testing.T) {
	idx := newRecentIndex()
	mem := model.Memory{ID: uuid.New()}
	idx.observe(mem)
	idx.remove(mem.ID)

	_, ok := idx.get(mem.ID)
	require.False(t, ok)
}

func TestRecentIndex_EvictsOldestPastCapacity(t *testing.T) {
	idx := newRecentIndex()
	first := model.Memory{ID: uuid.New()}
	idx.observe(first)

	for i := 0; i < recentIndexCapacity; i++ {
		idx.observe(model.Memory{ID: uuid.New()})
	}

	_, ok := idx.get(first.ID)
	require.False(t, ok, "oldest entry should have been evicted once capacity was exceeded")
}

func TestRecentIndex_ObserveUpdatesExistingEntryInPlace(t *testing.T) {
	idx := newRecentIndex()
	id := uuid.New()
	idx.observe(model.Memory{ID: id, Content: "v1"})
	idx.observe(model.Memory{ID: id, Content: "v2"})

	got, ok := idx.get(id)
	require.True(t, ok)
	require.Equal(t, "v2", got.Content)
}
