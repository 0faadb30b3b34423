package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/adm"
	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/facade"
	"github.com/corenexus/memory-service/internal/graph"
	"github.com/corenexus/memory-service/internal/model"
	"github.com/corenexus/memory-service/internal/plugin/extractor/regexextractor"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
	"github.com/corenexus/memory-service/internal/unifiedstore"
)

type fakeEmbedder struct{ dim int }

func (e *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}
func (e *fakeEmbedder) ModelName() string { return "fake" }
func (e *fakeEmbedder) Dimension() int    { return e.dim }

type fakeProvider struct {
	name   string
	stored []model.Memory
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Store(ctx context.Context, mem model.Memory) error {
	f.stored = append(f.stored, mem)
	return nil
}
func (f *fakeProvider) Query(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	return nil, nil
}
func (f *fakeProvider) Delete(ctx context.Context, id uuid.UUID) error {
	for i, mem := range f.stored {
		if mem.ID == id {
			f.stored = append(f.stored[:i], f.stored[i+1:]...)
			break
		}
	}
	return nil
}
func (f *fakeProvider) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeProvider) GetStats(ctx context.Context) (registryvector.Stats, error) {
	return registryvector.Stats{Count: int64(len(f.stored)), ProviderName: f.name}, nil
}

func (f *fakeProvider) GetByID(ctx context.Context, id uuid.UUID) (model.Memory, error) {
	for _, mem := range f.stored {
		if mem.ID == id {
			return mem, nil
		}
	}
	return model.Memory{}, errs.New(errs.KindNotFound, "memory not found")
}

var _ registryvector.ContentGetter = (*fakeProvider)(nil)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.EmbeddingDim = 4
	cfg.QueryMultiplier = 2
	cfg.DownAfterFailures = 2
	cfg.GraphEnabled = false
	primary := &fakeProvider{name: "pgvector"}
	cfg.Providers = []config.ProviderConfig{{Name: primary.name, Primary: true, Enabled: true}}
	cfg.PrimaryProvider = primary.name
	cfg.WriteTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second

	sup := unifiedstore.NewSupervisor(8, time.Second)
	store, err := unifiedstore.New(&cfg, map[string]registryvector.Provider{primary.name: primary}, sup)
	require.NoError(t, err)

	scorer, err := adm.NewScorer(&cfg)
	require.NoError(t, err)

	gp, err := graph.New(&cfg, "", &regexextractor.Extractor{})
	require.NoError(t, err)

	svc := facade.New(&cfg, &fakeEmbedder{dim: cfg.EmbeddingDim}, store, scorer, gp, sup)

	r := gin.New()
	MountRoutes(r, svc, gp, store)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateMemory_ReturnsStoredMemory(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/memories", createMemoryRequest{Content: "Alice works at Acme."})
	require.Equal(t, http.StatusOK, w.Code)

	var resp memoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Alice works at Acme.", resp.Content)
	require.Nil(t, resp.Embedding)
}

func TestCreateMemory_RejectsMissingContent(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/memories", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMemory_RoundTripsAfterCreate(t *testing.T) {
	r := newTestRouter(t)
	created := doJSON(r, http.MethodPost, "/memories", createMemoryRequest{Content: "remember me"})
	var resp memoryResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	got := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/memories/"+resp.ID.String(), nil)
	r.ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)
}

func TestGetMemory_ReturnsNotFoundForUnknownID(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/memories/"+uuid.New().String(), nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMemory_ReturnsBadRequestForInvalidID(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/memories/not-a-uuid", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteMemory_RemovesAndReturnsNoContent(t *testing.T) {
	r := newTestRouter(t)
	created := doJSON(r, http.MethodPost, "/memories", createMemoryRequest{Content: "to delete"})
	var resp memoryResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/memories/"+resp.ID.String(), nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/memories/"+resp.ID.String(), nil)
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusNotFound, w2.Code)
}

func TestQueryMemories_ReturnsServedByHeader(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/memories/query", queryMemoriesRequest{Text: "", Limit: 5})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Served-By"))
}

func TestGraphStats_ReturnsServiceUnavailableWhenDisabled(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/graph/stats", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGraphQuery_RejectsUnknownMode(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/graph/query", graphQueryRequest{Mode: "bogus"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphQuery_RejectsMissingEntityForExplore(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/graph/query", graphQueryRequest{Mode: "explore"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphQuery_RejectsMissingMemoryIDForInsights(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/graph/query", graphQueryRequest{Mode: "insights"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphQuery_RejectsInvalidMemoryIDForInsights(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/graph/query", graphQueryRequest{Mode: "insights", MemoryID: "not-a-uuid"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryMemories_AcceptsFiltersField(t *testing.T) {
	r := newTestRouter(t)
	userID := "user-1"
	w := doJSON(r, http.MethodPost, "/memories/query", queryMemoriesRequest{
		Text:  "",
		Limit: 5,
		Filters: queryFiltersRequest{
			UserID: &userID,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProviderInventory_ReportsConfiguredProviders(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	providers, ok := body["providers"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, providers, "pgvector")
}
