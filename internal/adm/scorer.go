// Package adm implements the ADM (Data Quality / Data Relevance / Data
// Intelligence) scoring engine used to gate low-value writes and to weight
// inferred graph relationships.
package adm

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/corenexus/memory-service/internal/config"
)

// Weights holds the composition weights for DQ, DR and DI. Callers are
// expected to pass weights that sum to 1; Score does not renormalize.
type Weights struct {
	Quality   float64
	Relevance float64
	Intel     float64
}

// Scorer computes ADM scores deterministically, reproducible to 1e-6.
//
// The rolling context sample backing the DR sub-score needs ordered
// enumeration over its full contents, which ristretto's sampled LRU cache
// cannot provide, so it is kept as a plain mutex-guarded ring buffer rather
// than a cache plugin; see the graph package for where ristretto is used.
type Scorer struct {
	weights    Weights
	sampleSize int

	mu     sync.Mutex
	sample [][]float32
	next   int
}

// NewScorer builds a Scorer with the given weights and a bounded rolling
// sample of recent embeddings for the DR sub-score.
func NewScorer(cfg *config.Config) (*Scorer, error) {
	size := int(cfg.ADMContextCacheSize)
	if size <= 0 {
		size = 256
	}
	return &Scorer{
		weights: Weights{
			Quality:   cfg.ADMWeightQuality,
			Relevance: cfg.ADMWeightRelevance,
			Intel:     cfg.ADMWeightIntel,
		},
		sampleSize: size,
		sample:     make([][]float32, 0, size),
	}, nil
}

// ObserveContext records embedding as part of the rolling context sample
// used to score subsequent memories' DR (data relevance) sub-score.
func (s *Scorer) ObserveContext(key string, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sample) < s.sampleSize {
		s.sample = append(s.sample, embedding)
		return
	}
	s.sample[s.next] = embedding
	s.next = (s.next + 1) % s.sampleSize
}

// Score computes the composite ADM score for a piece of content with its
// embedding, clamped to [0,1].
func (s *Scorer) Score(ctx context.Context, content string, embedding []float32) float64 {
	dq := dataQuality(content)
	dr := s.dataRelevance(embedding)
	di := dataIntelligence(content)
	return clamp01(s.weights.Quality*dq + s.weights.Relevance*dr + s.weights.Intel*di)
}

// dataQuality is a deterministic heuristic over the raw text: scores length
// linearly up to 200 runes and penalizes non-printable characters (tabs and
// newlines count as non-printable). Runs of spaces are not penalized.
func dataQuality(content string) float64 {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0
	}
	length := len([]rune(trimmed))
	lengthScore := clamp01(float64(length) / 200.0)

	printable := 0
	for _, r := range trimmed {
		if unicode.IsPrint(r) {
			printable++
		}
	}
	cleanliness := float64(printable) / float64(length)

	return clamp01(0.5*lengthScore + 0.5*cleanliness)
}

// dataRelevance scores the maximum cosine similarity of embedding against
// the rolling context sample. With no sample yet, defaults to 0.5 (neutral).
func (s *Scorer) dataRelevance(embedding []float32) float64 {
	s.mu.Lock()
	sample := append([][]float32(nil), s.sample...)
	s.mu.Unlock()

	var maxSim float64
	var seen bool
	for _, val := range sample {
		if len(val) != len(embedding) {
			continue
		}
		if sim := cosineSimilarity(embedding, val); !seen || sim > maxSim {
			maxSim = sim
			seen = true
		}
	}
	if !seen {
		return 0.5
	}
	return clamp01(maxSim)
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)
	properNoun    = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	numeral       = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
)

// RelationshipSignal scores the connecting text between two entity mentions
// on the same density heuristic as the DI sub-score, used to rescore
// inferred graph relationship strength.
func RelationshipSignal(text string) float64 {
	return dataIntelligence(text)
}

// dataIntelligence scores the density of entity-like and numeric signal in
// the text: proper nouns, numerals, and well-formed sentence structure.
func dataIntelligence(content string) float64 {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0
	}
	words := strings.Fields(trimmed)
	if len(words) == 0 {
		return 0
	}

	properNouns := len(properNoun.FindAllString(trimmed, -1))
	numerals := len(numeral.FindAllString(trimmed, -1))
	sentences := len(sentenceSplit.Split(trimmed, -1))

	entityDensity := clamp01(float64(properNouns+numerals) / float64(len(words)))
	structureScore := clamp01(float64(sentences) / (float64(len(words))/12.0 + 1))

	return clamp01(0.6*entityDensity + 0.4*structureScore)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
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
