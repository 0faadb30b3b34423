package llmextractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/model"
)

func newTestServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: content}}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractMentions_ParsesMentionsFromChatResponse(t *testing.T) {
	srv := newTestServer(t, `{"mentions":[{"type":"person","text":"Alice","charStart":0,"charEnd":5,"confidence":0.9}]}`)
	e := &Extractor{apiKey: "test-key", baseURL: srv.URL, model: "gpt-4o-mini"}

	mentions, err := e.ExtractMentions(context.Background(), "Alice went home.")
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	require.Equal(t, model.EntityPerson, mentions[0].EntityType)
	require.Equal(t, "Alice", mentions[0].Text)
}

func TestExtractMentions_ErrorsOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited"},
		}))
	}))
	defer srv.Close()

	e := &Extractor{apiKey: "test-key", baseURL: srv.URL, model: "gpt-4o-mini"}
	_, err := e.ExtractMentions(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limited")
}

func TestExtractMentions_ErrorsOnEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(chatResponse{}))
	}))
	defer srv.Close()

	e := &Extractor{apiKey: "test-key", baseURL: srv.URL, model: "gpt-4o-mini"}
	_, err := e.ExtractMentions(context.Background(), "text")
	require.Error(t, err)
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLMExtractorAPIKey = ""
	ctx := config.WithContext(context.Background(), &cfg)

	_, err := load(ctx)
	require.Error(t, err)
}

func TestLoad_DefaultsModelName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLMExtractorAPIKey = "test-key"
	cfg.LLMExtractorModelName = ""
	ctx := config.WithContext(context.Background(), &cfg)

	e, err := load(ctx)
	require.NoError(t, err)
	ext, ok := e.(*Extractor)
	require.True(t, ok)
	require.Equal(t, "gpt-4o-mini", ext.model)
}
