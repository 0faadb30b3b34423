package serve

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/corenexus/memory-service/internal/adm"
	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/distlock"
	"github.com/corenexus/memory-service/internal/facade"
	"github.com/corenexus/memory-service/internal/graph"
	"github.com/corenexus/memory-service/internal/httpapi"
	routesystem "github.com/corenexus/memory-service/internal/plugin/route/system"
	registryembed "github.com/corenexus/memory-service/internal/registry/embed"
	registryextractor "github.com/corenexus/memory-service/internal/registry/extractor"
	registrymigrate "github.com/corenexus/memory-service/internal/registry/migrate"
	registryroute "github.com/corenexus/memory-service/internal/registry/route"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
	"github.com/corenexus/memory-service/internal/unifiedstore"
)

// Server holds the running HTTP server and its background subsystems.
type Server struct {
	Config     *config.Config
	Router     *gin.Engine
	httpServer *http.Server
	cancelBg   context.CancelFunc
}

// Shutdown gracefully drains in-flight requests and stops background loops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBg()
	return s.httpServer.Shutdown(ctx)
}

// StartServer wires every subsystem — vector providers, embedder, ADM
// scorer, graph provider, unified store orchestration — and starts the
// HTTP API. Use cfg.Listener.Port=0 for an OS-assigned port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting Core Nexus memory service",
		"port", cfg.Listener.Port,
		"primaryProvider", cfg.PrimaryProvider,
		"mirrorOnWrite", cfg.MirrorOnWrite,
		"embedding", cfg.EmbedType,
		"graphEnabled", cfg.GraphEnabled,
	)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	providers := make(map[string]registryvector.Provider)
	for _, pc := range cfg.EnabledProviders() {
		loader, err := registryvector.Select(pc.Name)
		if err != nil {
			return nil, fmt.Errorf("vector provider %q: %w", pc.Name, err)
		}
		provider, err := loader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector provider %q: %w", pc.Name, err)
		}
		providers[pc.Name] = provider
	}

	embedLoader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", cfg.EmbedType, err)
	}
	embedder, err := embedLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder %q: %w", cfg.EmbedType, err)
	}

	bgCtx, cancelBg := context.WithCancel(context.Background())

	supervisor := unifiedstore.NewSupervisor(256, cfg.MirrorDeadline)
	go supervisor.Run(bgCtx)

	store, err := unifiedstore.New(cfg, providers, supervisor)
	if err != nil {
		cancelBg()
		return nil, err
	}

	var reconcileLock, pruneLock distlock.Lock
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			cancelBg()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		redisClient := goredis.NewClient(opts)
		token := uuid.NewString()
		reconcileLock = distlock.NewRedis(redisClient, "reconciler", token, cfg.DistributedLockTTL)
		pruneLock = distlock.NewRedis(redisClient, "graph-pruner", token, cfg.DistributedLockTTL)
	}

	reconciler := unifiedstore.NewReconciler(store, cfg.ReconcileEvery, cfg.ReconcileWindow, reconcileLock)
	go reconciler.Start(bgCtx)
	go runHealthProbeLoop(bgCtx, store, cfg.HealthProbeEvery)

	scorer, err := adm.NewScorer(cfg)
	if err != nil {
		cancelBg()
		return nil, fmt.Errorf("failed to initialize ADM scorer: %w", err)
	}

	var graphProvider *graph.Provider
	if cfg.GraphEnabled {
		extractorLoader, err := registryextractor.Select(cfg.GraphExtractorType)
		if err != nil {
			cancelBg()
			return nil, fmt.Errorf("graph extractor %q: %w", cfg.GraphExtractorType, err)
		}
		ext, err := extractorLoader(ctx)
		if err != nil {
			cancelBg()
			return nil, fmt.Errorf("failed to initialize graph extractor: %w", err)
		}
		graphProvider, err = graph.New(cfg, cfg.DBURL, ext)
		if err != nil {
			cancelBg()
			return nil, fmt.Errorf("failed to initialize graph provider: %w", err)
		}
	} else {
		// Still construct a disabled provider so the facade and httpapi
		// layers have a uniform dependency; every method short-circuits on
		// requireEnabled() when cfg.GraphEnabled is false.
		graphProvider, err = graph.New(cfg, cfg.DBURL, nil)
		if err != nil {
			cancelBg()
			return nil, fmt.Errorf("failed to initialize graph provider: %w", err)
		}
	}

	pruner := graph.NewPruner(graphProvider, cfg.GraphPruneEvery, cfg.GraphPruneBatchSize, pruneLock)
	go pruner.Start(bgCtx)

	svc := facade.New(cfg, embedder, store, scorer, graphProvider, supervisor)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			cancelBg()
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}
	for _, loader := range registryroute.ManagementRouteLoaders() {
		if err := loader(router); err != nil {
			cancelBg()
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}

	httpapi.MountRoutes(router, svc, graphProvider, store)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Listener.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "err", err)
		}
	}()

	log.Info("Server listening", "port", cfg.Listener.Port)
	routesystem.MarkReady()

	return &Server{
		Config:     cfg,
		Router:     router,
		httpServer: httpServer,
		cancelBg:   cancelBg,
	}, nil
}

func runHealthProbeLoop(ctx context.Context, store *unifiedstore.Orchestrator, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.ProbeHealth(ctx)
		}
	}
}
