package adm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/config"
)

func newTestScorer(t *testing.T) *Scorer {
	cfg := config.DefaultConfig()
	s, err := NewScorer(&cfg)
	require.NoError(t, err)
	return s
}

func TestScore_EmptyContentScoresLow(t *testing.T) {
	s := newTestScorer(t)
	score := s.Score(context.Background(), "", []float32{0.1, 0.2, 0.3})
	require.Less(t, score, 0.3)
}

func TestScore_IsClampedToUnitInterval(t *testing.T) {
	s := newTestScorer(t)
	score := s.Score(context.Background(), "Go is a statically typed, compiled language designed at Google in 2009.", []float32{1, 0, 0})
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 1.0)
}

func TestScore_DeterministicForSameInputs(t *testing.T) {
	s := newTestScorer(t)
	content := "Alice met Bob at Acme Corp on March 3rd to discuss Project Atlas."
	embedding := []float32{0.4, 0.1, 0.9, 0.2}
	first := s.Score(context.Background(), content, embedding)
	second := s.Score(context.Background(), content, embedding)
	require.Equal(t, first, second)
}

func TestDataRelevance_DefaultsToNeutralWithNoSample(t *testing.T) {
	s := newTestScorer(t)
	require.Equal(t, 0.5, s.dataRelevance([]float32{1, 0, 0, 0}))
}

func TestDataRelevance_RewardsSimilarityToObservedContext(t *testing.T) {
	s := newTestScorer(t)
	s.ObserveContext("k1", []float32{1, 0, 0, 0})

	similar := s.dataRelevance([]float32{1, 0, 0, 0})
	dissimilar := s.dataRelevance([]float32{0, 1, 0, 0})
	require.Greater(t, similar, dissimilar)
}

func TestDataRelevance_IsMaxSimilarityNotMeanAcrossSample(t *testing.T) {
	s := newTestScorer(t)
	s.ObserveContext("near-match", []float32{1, 0, 0, 0})
	s.ObserveContext("far-match", []float32{0, 0, 0, 1})

	dr := s.dataRelevance([]float32{1, 0, 0, 0})

	// A mean over one similarity of ~1 and one of ~0 would land near 0.5;
	// the max must stay near 1.
	require.Greater(t, dr, 0.9)
}

func TestObserveContext_WrapsAroundRingBuffer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ADMContextCacheSize = 2
	s, err := NewScorer(&cfg)
	require.NoError(t, err)

	s.ObserveContext("a", []float32{1, 0})
	s.ObserveContext("b", []float32{0, 1})
	s.ObserveContext("c", []float32{1, 0}) // overwrites slot 0 ("a")

	require.Len(t, s.sample, 2)
}

func TestRelationshipSignal_HigherForEntityDenseText(t *testing.T) {
	dense := RelationshipSignal("Alice and Bob discussed the Q3 2026 roadmap for Acme Corp.")
	sparse := RelationshipSignal("it was fine i guess")
	require.Greater(t, dense, sparse)
}
