// Package pinecone implements a mirror vector provider backed by Pinecone,
// grounded on the pinecone provider in the reviewed retrieval-augmented
// generation reference package.
package pinecone

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/pinecone"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/model"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pinecone",
		Loader: load,
	})
}

func load(ctx context.Context) (registryvector.Provider, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.PineconeAPIKey == "" {
		return nil, fmt.Errorf("pinecone: API key is required")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.PineconeAPIKey}
	if cfg.PineconeHost != "" {
		params.Host = cfg.PineconeHost
	}

	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("pinecone: create client: %w", err)
	}

	indexName := cfg.PineconeIndexName
	if indexName == "" {
		indexName = "core-nexus"
	}

	return &Store{client: client, indexName: indexName}, nil
}

// Store implements vectorprovider.Provider against a single Pinecone index.
type Store struct {
	client    *pinecone.Client
	indexName string
}

func (s *Store) Name() string { return "pinecone" }

func (s *Store) indexConn(ctx context.Context) (*pinecone.IndexConnection, error) {
	idx, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return nil, fmt.Errorf("describe index %s: %w", s.indexName, err)
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: idx.Host})
	if err != nil {
		return nil, fmt.Errorf("connect to index %s: %w", s.indexName, err)
	}
	return conn, nil
}

func (s *Store) Store(ctx context.Context, mem model.Memory) error {
	if len(mem.Embedding) != model.EmbeddingDim {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("embedding has %d dimensions, want %d", len(mem.Embedding), model.EmbeddingDim))
	}
	conn, err := s.indexConn(ctx)
	if err != nil {
		return errs.Wrap(errs.KindBackendUnavailable, "pinecone store", err)
	}
	defer conn.Close()

	vec := &pinecone.Vector{Id: mem.ID.String(), Values: &mem.Embedding}
	if _, err := conn.UpsertVectors(ctx, []*pinecone.Vector{vec}); err != nil {
		return errs.Wrap(errs.KindStoreFailed, "pinecone upsert", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	_ = filters // pinecone vectors carry no content; unifiedstore post-filters.
	if len(embedding) != model.EmbeddingDim {
		return nil, errs.New(errs.KindInvalidInput, fmt.Sprintf("query embedding has %d dimensions, want %d", len(embedding), model.EmbeddingDim))
	}
	conn, err := s.indexConn(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "pinecone query", err)
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector: embedding,
		TopK:   uint32(limit),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreFailed, "pinecone query", err)
	}

	hits := make([]registryvector.SearchHit, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		id, err := uuid.Parse(match.Vector.Id)
		if err != nil {
			continue
		}
		hits = append(hits, registryvector.SearchHit{MemoryID: id, Score: clamp01(float64(match.Score))})
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	conn, err := s.indexConn(ctx)
	if err != nil {
		return errs.Wrap(errs.KindBackendUnavailable, "pinecone delete", err)
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{id.String()}); err != nil {
		return errs.Wrap(errs.KindStoreFailed, "pinecone delete", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.DescribeIndex(ctx, s.indexName); err != nil {
		return errs.Wrap(errs.KindBackendUnavailable, "pinecone health check", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context) (registryvector.Stats, error) {
	conn, err := s.indexConn(ctx)
	if err != nil {
		return registryvector.Stats{}, errs.Wrap(errs.KindBackendUnavailable, "pinecone stats", err)
	}
	defer conn.Close()

	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return registryvector.Stats{}, errs.Wrap(errs.KindStoreFailed, "pinecone stats", err)
	}
	return registryvector.Stats{
		Count:        int64(stats.TotalVectorCount),
		Dimension:    model.EmbeddingDim,
		ProviderName: s.Name(),
	}, nil
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

var _ registryvector.Provider = (*Store)(nil)
