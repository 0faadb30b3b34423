// Package qdrant implements a mirror vector provider backed by Qdrant,
// grounded on the teacher's qdrant plugin.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/model"
	registrymigrate "github.com/corenexus/memory-service/internal/registry/migrate"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

// schemaMigrator implements migrate.Migrator for Qdrant collection setup.
type schemaMigrator struct{}

func (m *schemaMigrator) Name() string { return "qdrant" }

func (m *schemaMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !enabled(cfg, "qdrant") || !cfg.MigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	client := pb.NewCollectionsClient(conn)
	collectionName := effectiveCollectionName(cfg)

	if _, err := client.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: collectionName}); err == nil {
		return nil
	}

	_, err = client.Create(migrateCtx, &pb.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(cfg.EmbeddingDim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}
	log.Info("Created Qdrant collection", "name", collectionName)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 210, Migrator: &schemaMigrator{}})
}

func enabled(cfg *config.Config, name string) bool {
	for _, p := range cfg.Providers {
		if p.Name == name {
			return p.Enabled
		}
	}
	return false
}

func load(ctx context.Context) (registryvector.Provider, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Store{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: effectiveCollectionName(cfg),
	}, nil
}

// Store implements vectorprovider.Provider and vectorprovider.RecentGetter
// against a single Qdrant collection.
type Store struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
}

func (s *Store) Name() string { return "qdrant" }

func (s *Store) Store(ctx context.Context, mem model.Memory) error {
	if len(mem.Embedding) != model.EmbeddingDim {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("embedding has %d dimensions, want %d", len(mem.Embedding), model.EmbeddingDim))
	}
	point := &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: mem.ID.String()}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: mem.Embedding},
			},
		},
		Payload: map[string]*pb.Value{
			"created_at": {Kind: &pb.Value_StringValue{StringValue: mem.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z")}},
		},
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: s.collectionName, Points: []*pb.PointStruct{point}})
	if err != nil {
		return errs.Wrap(errs.KindStoreFailed, "qdrant store", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	_ = filters // qdrant payloads don't carry memory content; unifiedstore post-filters.
	if len(embedding) != model.EmbeddingDim {
		return nil, errs.New(errs.KindInvalidInput, fmt.Sprintf("query embedding has %d dimensions, want %d", len(embedding), model.EmbeddingDim))
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         embedding,
		Limit:          uint64(limit),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreFailed, "qdrant query", err)
	}
	hits := make([]registryvector.SearchHit, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id, err := uuid.Parse(pt.GetId().GetUuid())
		if err != nil {
			log.Error("qdrant: unparsable point id", "err", err)
			continue
		}
		hits = append(hits, registryvector.SearchHit{MemoryID: id, Score: clamp01(float64(pt.GetScore()))})
	}
	return hits, nil
}

func (s *Store) GetRecent(ctx context.Context, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	_ = filters
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collectionName,
		Limit:          newUint32(uint32(limit)),
		OrderBy: &pb.OrderBy{
			Key:       "created_at",
			Direction: pb.Direction_Desc.Enum(),
		},
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreFailed, "qdrant get_recent", err)
	}
	hits := make([]registryvector.SearchHit, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id, err := uuid.Parse(pt.GetId().GetUuid())
		if err != nil {
			continue
		}
		hits = append(hits, registryvector.SearchHit{MemoryID: id, Score: 1.0})
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}}},
			},
		},
	})
	if err != nil {
		return errs.Wrap(errs.KindStoreFailed, "qdrant delete", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	collClient := pb.NewCollectionsClient(s.conn)
	if _, err := collClient.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collectionName}); err != nil {
		return errs.Wrap(errs.KindBackendUnavailable, "qdrant health check", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context) (registryvector.Stats, error) {
	collClient := pb.NewCollectionsClient(s.conn)
	info, err := collClient.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collectionName})
	if err != nil {
		return registryvector.Stats{}, errs.Wrap(errs.KindStoreFailed, "qdrant stats", err)
	}
	return registryvector.Stats{
		Count:        int64(info.GetResult().GetPointsCount()),
		Dimension:    model.EmbeddingDim,
		ProviderName: s.Name(),
	}, nil
}

func newUint64(v uint64) *uint64 { return &v }
func newUint32(v uint32) *uint32 { return &v }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func effectiveCollectionName(cfg *config.Config) string {
	prefix := strings.TrimSpace(cfg.QdrantCollectionPrefix)
	if prefix == "" {
		prefix = "core-nexus"
	}
	return fmt.Sprintf("%s-%d", prefix, cfg.EmbeddingDim)
}

var (
	_ registryvector.Provider     = (*Store)(nil)
	_ registryvector.RecentGetter = (*Store)(nil)
)
