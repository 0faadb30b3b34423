package serve

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/corenexus/memory-service/internal/config"
	registryembed "github.com/corenexus/memory-service/internal/registry/embed"
	registryextractor "github.com/corenexus/memory-service/internal/registry/extractor"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"

	// Import all plugins to trigger init() registration.
	_ "github.com/corenexus/memory-service/internal/plugin/embed/local"
	_ "github.com/corenexus/memory-service/internal/plugin/embed/openai"
	_ "github.com/corenexus/memory-service/internal/plugin/extractor/llmextractor"
	_ "github.com/corenexus/memory-service/internal/plugin/extractor/regexextractor"
	_ "github.com/corenexus/memory-service/internal/plugin/route/system"
	_ "github.com/corenexus/memory-service/internal/plugin/vector/chroma"
	_ "github.com/corenexus/memory-service/internal/plugin/vector/pgvector"
	_ "github.com/corenexus/memory-service/internal/plugin/vector/pinecone"
	_ "github.com/corenexus/memory-service/internal/plugin/vector/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var providerNames string
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the Core Nexus memory service HTTP API",
		Flags:  flags(&cfg, &providerNames, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			if providerNames != "" {
				cfg.Providers = parseProviders(providerNames, cfg.PrimaryProvider)
			}
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, providerNames *string, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{
		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},

		// ── Database ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Postgres connection URL backing pgvector and the graph tables",
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MIGRATE_AT_START"),
			Destination: &cfg.MigrateAtStart,
			Value:       cfg.MigrateAtStart,
			Usage:       "Run additive schema migrations for enabled providers at startup",
		},

		// ── Vector Store ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-providers",
			Category:    "Vector Store:",
			Destination: providerNames,
			Usage:       "Comma-separated provider list, primary first (" + strings.Join(registryvector.Names(), "|") + "); default: pgvector",
		},
		&cli.StringFlag{
			Name:        "vector-primary",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_PRIMARY"),
			Destination: &cfg.PrimaryProvider,
			Value:       cfg.PrimaryProvider,
			Usage:       "Primary provider name",
		},
		&cli.BoolFlag{
			Name:        "vector-mirror-on-write",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_MIRROR_ON_WRITE"),
			Destination: &cfg.MirrorOnWrite,
			Value:       cfg.MirrorOnWrite,
			Usage:       "Mirror every write to all non-primary configured providers",
		},
		&cli.StringFlag{
			Name:        "vector-read-strategy",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_READ_STRATEGY"),
			Destination: (*string)(&cfg.ReadStrategy),
			Value:       string(cfg.ReadStrategy),
			Usage:       "primary_only | primary_then_fallback | fan_out_merge",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant gRPC host",
		},
		&cli.IntFlag{
			Name:        "vector-qdrant-port",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key, if required",
		},
		&cli.StringFlag{
			Name:        "vector-pinecone-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PINECONE_API_KEY", "PINECONE_API_KEY"),
			Destination: &cfg.PineconeAPIKey,
			Usage:       "Pinecone API key",
		},
		&cli.StringFlag{
			Name:        "vector-pinecone-index",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PINECONE_INDEX"),
			Destination: &cfg.PineconeIndexName,
			Value:       cfg.PineconeIndexName,
			Usage:       "Pinecone index name",
		},
		&cli.StringFlag{
			Name:        "vector-chroma-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_CHROMA_HOST"),
			Destination: &cfg.ChromaHost,
			Value:       cfg.ChromaHost,
			Usage:       "Chroma REST host",
		},
		&cli.IntFlag{
			Name:        "vector-chroma-port",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_CHROMA_PORT"),
			Destination: &cfg.ChromaPort,
			Value:       cfg.ChromaPort,
			Usage:       "Chroma REST port",
		},

		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key",
		},

		// ── ADM Scoring ───────────────────────────────────────────
		&cli.Float64Flag{
			Name:        "adm-min-quality",
			Category:    "ADM Scoring:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_ADM_MIN_QUALITY"),
			Destination: &cfg.ADMMinQuality,
			Value:       cfg.ADMMinQuality,
			Usage:       "Minimum composite ADM score before a write is flagged low_quality",
		},

		// ── Graph ─────────────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "graph-enabled",
			Category:    "Graph:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_GRAPH_ENABLED"),
			Destination: &cfg.GraphEnabled,
			Value:       cfg.GraphEnabled,
			Usage:       "Enable entity/relationship graph ingestion and query endpoints",
		},
		&cli.StringFlag{
			Name:        "graph-extractor-kind",
			Category:    "Graph:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_GRAPH_EXTRACTOR_KIND"),
			Destination: &cfg.GraphExtractorType,
			Value:       cfg.GraphExtractorType,
			Usage:       "Mention extractor (" + strings.Join(registryextractor.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "graph-llm-extractor-api-key",
			Category:    "Graph:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_GRAPH_LLM_EXTRACTOR_API_KEY"),
			Destination: &cfg.LLMExtractorAPIKey,
			Usage:       "API key for the llm mention extractor",
		},

		// ── Distributed Coordination ──────────────────────────────
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Distributed Coordination:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis URL used to lease the reconciler and graph pruner across replicas; omit to run every sweep locally",
		},
	}
}

// parseProviders turns a comma-separated provider name list into
// ProviderConfig entries, marking the first (or primaryName, if present
// in the list) as primary.
func parseProviders(csv, primaryName string) []config.ProviderConfig {
	var out []config.ProviderConfig
	marked := false
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, config.ProviderConfig{
			Name:    name,
			Primary: name == primaryName,
			Enabled: true,
		})
		marked = marked || name == primaryName
	}
	if len(out) > 0 && !marked {
		out[0].Primary = true
	}
	return out
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
