package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/config"
)

func TestEmbedTexts_SortsResultsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{4, 5, 6}},
				{"index": 0, "embedding": []float32{1, 2, 3}},
			},
		}))
	}))
	defer srv.Close()

	e := &OpenAIEmbedder{apiKey: "test-key", model: "text-embedding-3-small", baseURL: srv.URL}
	vecs, err := e.EmbedTexts(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, vecs[0])
	require.Equal(t, []float32{4, 5, 6}, vecs[1])
}

func TestEmbedTexts_ErrorsOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid api key"},
		}))
	}))
	defer srv.Close()

	e := &OpenAIEmbedder{apiKey: "bad-key", model: "text-embedding-3-small", baseURL: srv.URL}
	_, err := e.EmbedTexts(context.Background(), []string{"text"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid api key")
}

func TestEmbedTexts_ErrorsOnDataCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1}}},
		}))
	}))
	defer srv.Close()

	e := &OpenAIEmbedder{apiKey: "test-key", model: "text-embedding-3-small", baseURL: srv.URL}
	_, err := e.EmbedTexts(context.Background(), []string{"one", "two"})
	require.Error(t, err)
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = ""
	ctx := config.WithContext(context.Background(), &cfg)

	_, err := load(ctx)
	require.Error(t, err)
}

func TestLoad_DefaultsDimensionForSmallModel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "test-key"
	cfg.OpenAIModelName = "text-embedding-3-small"
	cfg.OpenAIDimensions = 0
	ctx := config.WithContext(context.Background(), &cfg)

	e, err := load(ctx)
	require.NoError(t, err)
	require.Equal(t, 1536, e.Dimension())
}

func TestPtrIfPositive(t *testing.T) {
	require.Nil(t, ptrIfPositive(0))
	require.Nil(t, ptrIfPositive(-1))
	require.NotNil(t, ptrIfPositive(5))
}
