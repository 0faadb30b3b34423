package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/corenexus/memory-service/internal/config"
	registrymigrate "github.com/corenexus/memory-service/internal/registry/migrate"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/corenexus/memory-service/internal/plugin/vector/pgvector"
	_ "github.com/corenexus/memory-service/internal/plugin/vector/qdrant"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run additive schema migrations for every enabled provider",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("MEMORY_SERVICE_DB_URL"),
				Usage:    "Postgres connection URL backing pgvector and the graph tables",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "vector-qdrant-host",
				Sources: cli.EnvVars("MEMORY_SERVICE_QDRANT_HOST"),
				Usage:   "Qdrant host",
				Value:   "localhost",
			},
			&cli.IntFlag{
				Name:    "vector-qdrant-port",
				Sources: cli.EnvVars("MEMORY_SERVICE_QDRANT_PORT"),
				Usage:   "Qdrant gRPC port",
				Value:   6334,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.MigrateAtStart = true
			cfg.QdrantHost = cmd.String("vector-qdrant-host")
			cfg.QdrantPort = int(cmd.Int("vector-qdrant-port"))
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
