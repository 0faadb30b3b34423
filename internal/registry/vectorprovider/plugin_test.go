package vectorprovider

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/model"
)

func TestRegister_MakesPluginSelectable(t *testing.T) {
	defer resetPlugins(plugins)
	plugins = nil

	Register(Plugin{Name: "test-provider", Loader: func(ctx context.Context) (Provider, error) {
		return nil, nil
	}})

	require.Contains(t, Names(), "test-provider")
	loader, err := Select("test-provider")
	require.NoError(t, err)
	require.NotNil(t, loader)
}

func TestSelect_ErrorsOnUnknownName(t *testing.T) {
	defer resetPlugins(plugins)
	plugins = nil

	_, err := Select("does-not-exist")
	require.Error(t, err)
}

func resetPlugins(saved []Plugin) {
	plugins = saved
}

func TestFilters_EmptyMatchesEverything(t *testing.T) {
	require.True(t, Filters{}.Empty())
	require.True(t, Filters{}.Matches(model.Memory{}))
	require.True(t, Filters{}.Matches(model.Memory{ID: uuid.New()}))
}

func TestFilters_NonEmptyNeverMatchesUnhydratedMemory(t *testing.T) {
	f := Filters{Metadata: map[string]interface{}{"k": "v"}}
	require.False(t, f.Empty())
	require.False(t, f.Matches(model.Memory{}))
}

func TestFilters_MetadataContainmentRequiresExactValue(t *testing.T) {
	f := Filters{Metadata: map[string]interface{}{"topic": "billing"}}
	mem := model.Memory{ID: uuid.New(), Metadata: map[string]interface{}{"topic": "billing", "extra": "ok"}}
	require.True(t, f.Matches(mem))

	mem.Metadata["topic"] = "support"
	require.False(t, f.Matches(mem))

	delete(mem.Metadata, "topic")
	require.False(t, f.Matches(mem))
}

func TestFilters_UserAndConversationScopingRequireExactMatch(t *testing.T) {
	userA := "user-a"
	userB := "user-b"
	convoA := "convo-a"

	f := Filters{UserID: &userA, ConversationID: &convoA}
	mem := model.Memory{ID: uuid.New(), UserID: &userA, ConversationID: &convoA}
	require.True(t, f.Matches(mem))

	mem.UserID = &userB
	require.False(t, f.Matches(mem))

	mem.UserID = nil
	require.False(t, f.Matches(mem))
}
