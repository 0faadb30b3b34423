// Package facade exposes the MemoryService surface: create/query/get/delete
// memory operations composing the embedder, the unified vector store, the
// ADM scorer, and the graph provider, grounded on the teacher's composition
// of services behind its route handlers.
package facade

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/corenexus/memory-service/internal/adm"
	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/graph"
	"github.com/corenexus/memory-service/internal/model"
	registryembed "github.com/corenexus/memory-service/internal/registry/embed"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
	"github.com/corenexus/memory-service/internal/unifiedstore"
)

// MemoryService is the single entry point request handlers call into.
type MemoryService struct {
	cfg          *config.Config
	embedder     registryembed.Embedder
	store        *unifiedstore.Orchestrator
	scorer       *adm.Scorer
	graph        *graph.Provider
	supervisor   *unifiedstore.Supervisor
	recent       *recentIndex
}

// New wires a MemoryService from its already-constructed collaborators.
func New(cfg *config.Config, embedder registryembed.Embedder, store *unifiedstore.Orchestrator, scorer *adm.Scorer, gp *graph.Provider, supervisor *unifiedstore.Supervisor) *MemoryService {
	return &MemoryService{
		cfg:        cfg,
		embedder:   embedder,
		store:      store,
		scorer:     scorer,
		graph:      gp,
		supervisor: supervisor,
		recent:     newRecentIndex(),
	}
}

// CreateMemoryResult is the outcome of a create_memory call.
type CreateMemoryResult struct {
	Memory     model.Memory
	ADMScore   float64
	LowQuality bool
}

// CreateMemory embeds content, scores it with ADM, stores it in the
// primary provider (mirroring and graph ingestion happen asynchronously),
// and returns the stored memory. Writes below min_quality are still
// stored, but flagged LowQuality so callers can filter them out.
func (s *MemoryService) CreateMemory(ctx context.Context, content string, metadata map[string]interface{}, userID, conversationID *string) (CreateMemoryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if content == "" {
		return CreateMemoryResult{}, errs.New(errs.KindInvalidInput, "content must not be empty")
	}

	embeddings, err := s.embedder.EmbedTexts(ctx, []string{content})
	if err != nil {
		return CreateMemoryResult{}, errs.Wrap(errs.KindEmbedderFailed, "embed content", err)
	}
	embedding := embeddings[0]
	if len(embedding) != s.cfg.EmbeddingDim {
		return CreateMemoryResult{}, errs.New(errs.KindInvalidInput, "embedder returned wrong dimension")
	}

	score := s.scorer.Score(ctx, content, embedding)
	lowQuality := score < s.cfg.ADMMinQuality

	mem := model.Memory{
		ID:              uuid.New(),
		Content:         content,
		Embedding:       embedding,
		Metadata:        metadata,
		ImportanceScore: score,
		LowQuality:      lowQuality,
		UserID:          userID,
		ConversationID:  conversationID,
		CreatedAt:       time.Now(),
		LastAccessed:    time.Now(),
	}

	if err := s.store.Add(ctx, mem); err != nil {
		return CreateMemoryResult{}, err
	}
	s.recent.observe(mem)
	s.scorer.ObserveContext(mem.ID.String(), embedding)

	if s.cfg.GraphEnabled {
		s.supervisor.Submit(func(ctx context.Context) {
			if err := s.graph.Ingest(ctx, mem); err != nil {
				log.Error("facade: graph ingest failed", "memoryId", mem.ID, "err", err)
			}
		})
	}

	return CreateMemoryResult{Memory: mem, ADMScore: score, LowQuality: lowQuality}, nil
}

// QueryResult is one scored memory returned by QueryMemories. Content and
// Metadata are populated when the serving provider can supply them (the
// primary always can); results served from a mirror during failover may
// leave them empty.
type QueryResult struct {
	MemoryID        uuid.UUID
	Score           float64
	Content         string
	Metadata        map[string]interface{}
	ImportanceScore float64
}

// QueryOutcome wraps QueryMemories' ranked results together with the name
// of the provider that actually served them, for S4-style failover visibility.
type QueryOutcome struct {
	Results  []QueryResult
	ServedBy string
}

// QueryMemories embeds the query text (if non-empty) and returns the
// nearest stored memories above minSimilarity, bounded by limit and
// restricted to records matching filters (metadata match, user/conversation
// scoping). An empty query text triggers the get_recent path.
func (s *MemoryService) QueryMemories(ctx context.Context, queryText string, limit int, minSimilarity float64, filters registryvector.Filters) (QueryOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	if limit > 200 {
		limit = 200
	}
	minSimilarity = clamp01(minSimilarity)

	var embedding []float32
	if queryText != "" {
		embeddings, err := s.embedder.EmbedTexts(ctx, []string{queryText})
		if err != nil {
			return QueryOutcome{}, errs.Wrap(errs.KindEmbedderFailed, "embed query", err)
		}
		embedding = embeddings[0]
	}

	fetchLimit := limit * s.cfg.QueryMultiplier
	if fetchLimit < limit {
		fetchLimit = limit
	}

	hits, servedBy, err := s.store.Query(ctx, embedding, fetchLimit, filters)
	if err != nil {
		return QueryOutcome{}, err
	}

	results := make([]QueryResult, 0, limit)
	for _, h := range hits {
		if h.Score < minSimilarity {
			continue
		}
		results = append(results, QueryResult{
			MemoryID:        h.MemoryID,
			Score:           h.Score,
			Content:         h.Memory.Content,
			Metadata:        h.Memory.Metadata,
			ImportanceScore: h.Memory.ImportanceScore,
		})
		if len(results) >= limit {
			break
		}
	}
	return QueryOutcome{Results: results, ServedBy: servedBy}, nil
}

// DeleteMemory removes a memory from the primary provider and every
// configured mirror.
func (s *MemoryService) DeleteMemory(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	s.recent.remove(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if s.cfg.GraphEnabled {
		s.supervisor.Submit(func(ctx context.Context) {
			if err := s.graph.OnMemoryDeleted(ctx, id); err != nil {
				log.Error("facade: graph cascade delete failed", "memoryId", id, "err", err)
			}
		})
	}
	return nil
}

// GetMemory reads a memory's full record. The recent-write cache is a fast
// path only: a cache miss (eviction, restart) falls through to the primary
// provider, which is the durable source of truth, so get_memory never
// returns not-found for a memory that still exists on the primary.
func (s *MemoryService) GetMemory(ctx context.Context, id uuid.UUID) (model.Memory, error) {
	if mem, ok := s.recent.get(id); ok {
		return mem, nil
	}
	mem, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Memory{}, err
	}
	s.recent.observe(mem)
	return mem, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
