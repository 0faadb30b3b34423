package qdrant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/model"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

func TestClamp01_BoundsScores(t *testing.T) {
	require.Equal(t, 0.0, clamp01(-0.2))
	require.Equal(t, 1.0, clamp01(1.5))
	require.Equal(t, 0.5, clamp01(0.5))
}

func TestEffectiveCollectionName_DefaultsPrefixWhenUnset(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.QdrantCollectionPrefix = ""
	cfg.EmbeddingDim = 1536
	require.Equal(t, "core-nexus-1536", effectiveCollectionName(&cfg))
}

func TestEffectiveCollectionName_UsesConfiguredPrefix(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.QdrantCollectionPrefix = "memories"
	cfg.EmbeddingDim = 768
	require.Equal(t, "memories-768", effectiveCollectionName(&cfg))
}

func TestDialOptions_AddsAPIKeyCredentialWhenConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.QdrantAPIKey = "secret"
	opts := dialOptions(&cfg)
	require.Len(t, opts, 2)
}

func TestDialOptions_SkipsAPIKeyCredentialWhenUnset(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.QdrantAPIKey = ""
	opts := dialOptions(&cfg)
	require.Len(t, opts, 1)
}

func TestAPIKeyCredentials_GetRequestMetadata(t *testing.T) {
	creds := apiKeyCredentials{apiKey: "secret", requireTLS: true}
	md, err := creds.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, "secret", md["api-key"])
	require.True(t, creds.RequireTransportSecurity())
}

func TestStore_RejectsWrongEmbeddingDimension(t *testing.T) {
	s := &Store{collectionName: "test"}
	err := s.Store(context.Background(), model.Memory{Embedding: []float32{1, 2, 3}})
	require.Error(t, err)
}

func TestQuery_RejectsWrongEmbeddingDimension(t *testing.T) {
	s := &Store{collectionName: "test"}
	_, err := s.Query(context.Background(), []float32{1, 2}, 5, registryvector.Filters{})
	require.Error(t, err)
}
