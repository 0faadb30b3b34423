package facade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/adm"
	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/model"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
	"github.com/corenexus/memory-service/internal/unifiedstore"
)

type fakeEmbedder struct {
	dim int
	err error
}

func (e *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
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
	hits   []registryvector.SearchHit
	stored []model.Memory
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Store(ctx context.Context, mem model.Memory) error {
	f.stored = append(f.stored, mem)
	return nil
}
func (f *fakeProvider) Query(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	return f.hits, nil
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
func (f *fakeProvider) HealthCheck(ctx context.Context) error         { return nil }
func (f *fakeProvider) GetStats(ctx context.Context) (registryvector.Stats, error) {
	return registryvector.Stats{Count: int64(len(f.stored)), ProviderName: f.name}, nil
}

// GetByID searches the provider's own stored slice, giving these tests a
// real (if trivial) vectorprovider.ContentGetter to read get_memory cache
// misses through, the same way the pgvector primary does.
func (f *fakeProvider) GetByID(ctx context.Context, id uuid.UUID) (model.Memory, error) {
	for _, mem := range f.stored {
		if mem.ID == id {
			return mem, nil
		}
	}
	return model.Memory{}, errs.New(errs.KindNotFound, "memory not found")
}

var _ registryvector.ContentGetter = (*fakeProvider)(nil)

func newTestService(t *testing.T, primary *fakeProvider) (*MemoryService, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.EmbeddingDim = 4
	cfg.QueryMultiplier = 2
	cfg.DownAfterFailures = 2
	cfg.GraphEnabled = false
	cfg.Providers = []config.ProviderConfig{{Name: primary.name, Primary: true, Enabled: true}}
	cfg.PrimaryProvider = primary.name
	cfg.WriteTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second

	sup := unifiedstore.NewSupervisor(8, time.Second)
	store, err := unifiedstore.New(&cfg, map[string]registryvector.Provider{primary.name: primary}, sup)
	require.NoError(t, err)

	scorer, err := adm.NewScorer(&cfg)
	require.NoError(t, err)

	svc := New(&cfg, &fakeEmbedder{dim: cfg.EmbeddingDim}, store, scorer, nil, sup)
	return svc, &cfg
}

func TestCreateMemory_RejectsEmptyContent(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, _ := newTestService(t, primary)

	_, err := svc.CreateMemory(context.Background(), "", nil, nil, nil)
	require.Error(t, err)
}

func TestCreateMemory_StoresAndCachesResult(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, _ := newTestService(t, primary)

	result, err := svc.CreateMemory(context.Background(), "Alice works at Acme.", nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, primary.stored, 1)

	got, err := svc.GetMemory(context.Background(), result.Memory.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice works at Acme.", got.Content)
}

func TestGetMemory_FallsThroughToPrimaryOnCacheMiss(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, _ := newTestService(t, primary)

	result, err := svc.CreateMemory(context.Background(), "Alice works at Acme.", nil, nil, nil)
	require.NoError(t, err)
	svc.recent.remove(result.Memory.ID)

	got, err := svc.GetMemory(context.Background(), result.Memory.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice works at Acme.", got.Content)
}

func TestCreateMemory_FlagsLowQualityBelowMinimum(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, cfg := newTestService(t, primary)
	cfg.ADMMinQuality = 1.1 // unreachable: every write should be flagged low quality

	result, err := svc.CreateMemory(context.Background(), "short", nil, nil, nil)
	require.NoError(t, err)
	require.True(t, result.LowQuality)
}

func TestCreateMemory_WrapsEmbedderFailure(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, _ := newTestService(t, primary)
	svc.embedder = &fakeEmbedder{dim: 4, err: errors.New("embedder down")}

	_, err := svc.CreateMemory(context.Background(), "hello", nil, nil, nil)
	require.Error(t, err)
}

func TestQueryMemories_FiltersByMinSimilarity(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	primary := &fakeProvider{name: "pgvector", hits: []registryvector.SearchHit{
		{MemoryID: id1, Score: 0.9},
		{MemoryID: id2, Score: 0.1},
	}}
	svc, _ := newTestService(t, primary)

	outcome, err := svc.QueryMemories(context.Background(), "find it", 10, 0.5, registryvector.Filters{})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	require.Equal(t, id1, outcome.Results[0].MemoryID)
}

func TestQueryMemories_ClampsLimitToUpperBound(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, _ := newTestService(t, primary)

	outcome, err := svc.QueryMemories(context.Background(), "", 10000, 0, registryvector.Filters{})
	require.NoError(t, err)
	require.NotNil(t, outcome.Results)
}

func TestQueryMemories_PassesFiltersThroughToStore(t *testing.T) {
	userID := "user-1"
	id := uuid.New()
	primary := &fakeProvider{name: "pgvector", hits: []registryvector.SearchHit{
		{MemoryID: id, Score: 0.9, Memory: model.Memory{ID: id, UserID: &userID}},
	}}
	svc, _ := newTestService(t, primary)

	outcome, err := svc.QueryMemories(context.Background(), "find it", 10, 0, registryvector.Filters{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	require.Equal(t, id, outcome.Results[0].MemoryID)
}

func TestDeleteMemory_RemovesFromCacheAndStore(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, _ := newTestService(t, primary)

	result, err := svc.CreateMemory(context.Background(), "to be deleted", nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMemory(context.Background(), result.Memory.ID))
	_, err = svc.GetMemory(context.Background(), result.Memory.ID)
	require.Error(t, err)
}

func TestGetMemory_MissingReturnsNotFound(t *testing.T) {
	primary := &fakeProvider{name: "pgvector"}
	svc, _ := newTestService(t, primary)

	_, err := svc.GetMemory(context.Background(), uuid.New())
	require.Error(t, err)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
