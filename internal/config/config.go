// Package config holds process-wide settings for Core Nexus, loaded once at
// startup via an explicit composition root and threaded through request
// context rather than looked up from ambient state — per the concurrency
// model's "global state" guidance.
package config

import (
	"context"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// ReadStrategy controls how UnifiedVectorStore.query behaves on primary failure.
type ReadStrategy string

const (
	ReadPrimaryOnly         ReadStrategy = "primary_only"
	ReadPrimaryThenFallback ReadStrategy = "primary_then_fallback"
	ReadFanOutMerge         ReadStrategy = "fan_out_merge"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

// ProviderConfig describes one configured vector provider slot.
type ProviderConfig struct {
	Name      string // "pgvector", "qdrant", "pinecone", "chroma"
	Primary   bool
	Enabled   bool
}

// Config holds all configuration for Core Nexus.
type Config struct {
	// Database (primary pgvector + graph backend)
	DBURL          string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Run schema migrations for all registered plugins on startup.
	MigrateAtStart bool

	// Vector store orchestration.
	Providers         []ProviderConfig
	PrimaryProvider   string
	MirrorOnWrite     bool
	ReadStrategy      ReadStrategy
	QueryMultiplier   int
	EmbeddingDim      int
	HealthProbeEvery  time.Duration
	DownAfterFailures int
	MirrorDeadline    time.Duration
	ReconcileEvery    time.Duration
	ReconcileWindow   time.Duration

	// Distributed coordination. Optional: when RedisURL is empty, every
	// replica runs its own background sweeps independently, which is
	// correct for a single-instance deployment.
	RedisURL           string
	DistributedLockTTL time.Duration

	// Qdrant mirror.
	QdrantHost             string
	QdrantPort             int
	QdrantCollectionPrefix string
	QdrantAPIKey           string
	QdrantUseTLS           bool
	QdrantStartupTimeout   time.Duration

	// Pinecone mirror.
	PineconeAPIKey    string
	PineconeHost      string
	PineconeIndexName string

	// Chroma mirror.
	ChromaHost string
	ChromaPort int
	ChromaUseTLS bool

	// Embedding.
	EmbedType        string // "openai" or "local"
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int

	// ADM scoring.
	ADMWeightQuality    float64
	ADMWeightRelevance  float64
	ADMWeightIntel      float64
	ADMMinQuality       float64
	ADMMinStrength      float64
	ADMContextCacheSize int64

	// Graph provider.
	GraphEnabled          bool
	GraphExtractorType    string // "regex" or "llm"
	GraphMentionWindow    int
	GraphMaxExploreNodes  int
	GraphMaxPathDepth     int
	GraphNormCacheSize    int64
	LLMExtractorBaseURL   string
	LLMExtractorAPIKey    string
	LLMExtractorModelName string
	GraphPruneEvery       time.Duration
	GraphPruneBatchSize   int

	// Facade timeouts.
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// Admission control.
	PoolWaitHighWaterMark int

	// Server.
	Listener ListenerConfig
}

// DefaultConfig returns a Config with sensible defaults, grounded on the
// teacher's DefaultConfig shape.
func DefaultConfig() Config {
	return Config{
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
		MigrateAtStart: true,

		Providers: []ProviderConfig{
			{Name: "pgvector", Primary: true, Enabled: true},
		},
		PrimaryProvider:   "pgvector",
		MirrorOnWrite:     false,
		ReadStrategy:      ReadPrimaryThenFallback,
		QueryMultiplier:   2,
		EmbeddingDim:      1536,
		HealthProbeEvery:  15 * time.Second,
		DownAfterFailures: 3,
		MirrorDeadline:    60 * time.Second,
		ReconcileEvery:    60 * time.Second,
		ReconcileWindow:   10 * time.Minute,

		DistributedLockTTL: 30 * time.Second,

		QdrantHost:             "localhost",
		QdrantPort:             6334,
		QdrantCollectionPrefix: "core-nexus",
		QdrantStartupTimeout:   30 * time.Second,

		PineconeIndexName: "core-nexus",

		ChromaHost: "localhost",
		ChromaPort: 8000,

		EmbedType:       "local",
		OpenAIModelName: "text-embedding-3-small",
		OpenAIBaseURL:   "https://api.openai.com/v1",

		ADMWeightQuality:    0.3,
		ADMWeightRelevance:  0.4,
		ADMWeightIntel:      0.3,
		ADMMinQuality:       0.2,
		ADMMinStrength:      0.3,
		ADMContextCacheSize: 4096,

		GraphEnabled:         false,
		GraphExtractorType:   "regex",
		GraphMentionWindow:   240,
		GraphMaxExploreNodes: 100,
		GraphMaxPathDepth:    5,
		GraphNormCacheSize:   8192,
		GraphPruneEvery:      1 * time.Hour,
		GraphPruneBatchSize:  500,

		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,

		PoolWaitHighWaterMark: 256,

		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// QdrantAddress returns the host:port used to dial the Qdrant gRPC endpoint.
func (c *Config) QdrantAddress() string {
	return c.QdrantHost + ":" + itoa(c.QdrantPort)
}

// ChromaBaseURL returns the scheme://host:port used to talk to the Chroma REST API.
func (c *Config) ChromaBaseURL() string {
	scheme := "http"
	if c.ChromaUseTLS {
		scheme = "https"
	}
	return scheme + "://" + c.ChromaHost + ":" + itoa(c.ChromaPort)
}

// EnabledProviders returns the configured providers in their configured order.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TrimmedOrDefault returns s trimmed, or def if the trimmed result is empty.
func TrimmedOrDefault(s, def string) string {
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return def
}
