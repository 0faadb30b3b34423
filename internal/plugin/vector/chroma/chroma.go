// Package chroma implements a mirror vector provider backed by a Chroma
// server over its plain HTTP API, grounded on the chroma provider in the
// reviewed retrieval-augmented generation reference package.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/model"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

const collectionName = "core-nexus"

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "chroma",
		Loader: load,
	})
}

func load(ctx context.Context) (registryvector.Provider, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.ChromaHost == "" {
		return nil, fmt.Errorf("chroma: host is required")
	}
	return &Store{
		baseURL:    cfg.ChromaBaseURL(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Store implements vectorprovider.Provider against a Chroma server's v1 REST API.
type Store struct {
	baseURL    string
	httpClient *http.Client
}

func (s *Store) Name() string { return "chroma" }

func (s *Store) Store(ctx context.Context, mem model.Memory) error {
	if len(mem.Embedding) != model.EmbeddingDim {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("embedding has %d dimensions, want %d", len(mem.Embedding), model.EmbeddingDim))
	}
	vec64 := make([]float64, len(mem.Embedding))
	for i, v := range mem.Embedding {
		vec64[i] = float64(v)
	}
	payload := map[string]any{
		"ids":        []string{mem.ID.String()},
		"embeddings": [][]float64{vec64},
	}
	if err := s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/add", collectionName), payload, nil); err != nil {
		return errs.Wrap(errs.KindStoreFailed, "chroma store", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	_ = filters // chroma collection here holds no metadata; unifiedstore post-filters.
	if len(embedding) != model.EmbeddingDim {
		return nil, errs.New(errs.KindInvalidInput, fmt.Sprintf("query embedding has %d dimensions, want %d", len(embedding), model.EmbeddingDim))
	}
	vec64 := make([]float64, len(embedding))
	for i, v := range embedding {
		vec64[i] = float64(v)
	}
	payload := map[string]any{
		"query_embeddings": [][]float64{vec64},
		"n_results":        limit,
	}
	var result struct {
		IDs       [][]string    `json:"ids"`
		Distances [][]float64   `json:"distances"`
	}
	if err := s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/query", collectionName), payload, &result); err != nil {
		return nil, errs.Wrap(errs.KindStoreFailed, "chroma query", err)
	}
	if len(result.IDs) == 0 {
		return nil, nil
	}
	ids, distances := result.IDs[0], []float64{}
	if len(result.Distances) > 0 {
		distances = result.Distances[0]
	}
	hits := make([]registryvector.SearchHit, 0, len(ids))
	for i, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		score := 0.0
		if i < len(distances) {
			score = clamp01(1 - distances[i])
		}
		hits = append(hits, registryvector.SearchHit{MemoryID: id, Score: score})
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	payload := map[string]any{"ids": []string{id.String()}}
	if err := s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/delete", collectionName), payload, nil); err != nil {
		return errs.Wrap(errs.KindStoreFailed, "chroma delete", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return errs.Wrap(errs.KindBackendUnavailable, "chroma health check", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindBackendUnavailable, "chroma health check", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.KindBackendUnavailable, fmt.Sprintf("chroma heartbeat returned status %d", resp.StatusCode))
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context) (registryvector.Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/collections/%s/count", s.baseURL, collectionName), nil)
	if err != nil {
		return registryvector.Stats{}, errs.Wrap(errs.KindStoreFailed, "chroma stats", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return registryvector.Stats{}, errs.Wrap(errs.KindBackendUnavailable, "chroma stats", err)
	}
	defer resp.Body.Close()
	var count int64
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return registryvector.Stats{}, errs.Wrap(errs.KindStoreFailed, "chroma stats decode", err)
	}
	return registryvector.Stats{Count: count, Dimension: model.EmbeddingDim, ProviderName: s.Name()}, nil
}

func (s *Store) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
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
