// Package pgvector implements the primary vector provider backed by the
// Postgres pgvector extension, grounded on the teacher's pgvector plugin.
package pgvector

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/model"
	registrymigrate "github.com/corenexus/memory-service/internal/registry/migrate"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

//go:embed db/pgvector-schema.sql
var pgvectorSchemaSQL string

// schemaMigrator implements migrate.Migrator for the pgvector + graph schema.
type schemaMigrator struct{}

func (m *schemaMigrator) Name() string { return "pgvector" }

func (m *schemaMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.MigrateAtStart || cfg.DBURL == "" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return db.Exec(pgvectorSchemaSQL).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &schemaMigrator{}})
}

func load(ctx context.Context) (registryvector.Provider, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("pgvector: DBURL is required")
	}
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return &Store{db: db}, nil
}

func openDB(dsn string) (*gorm.DB, error) {
	return openGormDB(dsn)
}

// Store implements vectorprovider.Provider and vectorprovider.RecentGetter
// on top of a Postgres database with the pgvector extension enabled.
type Store struct {
	db *gorm.DB
}

func (s *Store) Name() string { return "pgvector" }

// memoryColumns is the column list shared by Query, GetRecent and GetByID:
// the primary provider owns full memory persistence, not just the vector.
const memoryColumns = "id, content, metadata, importance_score, low_quality, user_id, conversation_id, created_at, last_accessed, access_count"

func (s *Store) Store(ctx context.Context, mem model.Memory) error {
	if len(mem.Embedding) != model.EmbeddingDim {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("embedding has %d dimensions, want %d", len(mem.Embedding), model.EmbeddingDim))
	}
	vec := pgvec.NewVector(mem.Embedding)
	metadataJSON, err := json.Marshal(mem.Metadata)
	if err != nil {
		return errs.Wrap(errs.KindInvalidInput, "pgvector store: marshal metadata", err)
	}
	err = s.db.WithContext(ctx).Exec(`
		INSERT INTO memory_embeddings
			(id, embedding, content, metadata, importance_score, low_quality, user_id, conversation_id, created_at, last_accessed, access_count)
		VALUES (?, ?::vector, ?, ?::jsonb, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			embedding        = EXCLUDED.embedding,
			content          = EXCLUDED.content,
			metadata         = EXCLUDED.metadata,
			importance_score = EXCLUDED.importance_score,
			low_quality      = EXCLUDED.low_quality,
			user_id          = EXCLUDED.user_id,
			conversation_id  = EXCLUDED.conversation_id,
			last_accessed    = EXCLUDED.last_accessed,
			access_count     = EXCLUDED.access_count`,
		mem.ID, vec, mem.Content, string(metadataJSON), mem.ImportanceScore, mem.LowQuality,
		mem.UserID, mem.ConversationID, mem.CreatedAt, mem.LastAccessed, mem.AccessCount,
	).Error
	if err != nil {
		return errs.Wrap(errs.KindStoreFailed, "pgvector store", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	if len(embedding) != model.EmbeddingDim {
		return nil, errs.New(errs.KindInvalidInput, fmt.Sprintf("query embedding has %d dimensions, want %d", len(embedding), model.EmbeddingDim))
	}
	vec := pgvec.NewVector(embedding)
	where, whereArgs, err := filterClause(filters)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "pgvector query: encode filters", err)
	}

	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> ?::vector) AS score
		FROM memory_embeddings
		%s
		ORDER BY embedding <=> ?::vector
		LIMIT ?`, memoryColumns, where)
	// Placeholder order: the score vector in the SELECT list, then the
	// WHERE clause's own args, then the ORDER BY vector, then the limit.
	args := []interface{}{vec}
	args = append(args, whereArgs...)
	args = append(args, vec, limit)

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "pgvector query", err)
	}
	defer rows.Close()

	var hits []registryvector.SearchHit
	for rows.Next() {
		mem, score, err := scanMemoryRow(rows)
		if err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		hits = append(hits, registryvector.SearchHit{MemoryID: mem.ID, Score: clamp01(score), Memory: mem})
	}
	return hits, nil
}

func (s *Store) GetRecent(ctx context.Context, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	where, whereArgs, err := filterClause(filters)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "pgvector get_recent: encode filters", err)
	}
	args := append([]interface{}{}, whereArgs...)
	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM memory_embeddings
		%s
		ORDER BY created_at DESC
		LIMIT ?`, memoryColumns, where)

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "pgvector get_recent", err)
	}
	defer rows.Close()

	var hits []registryvector.SearchHit
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		hits = append(hits, registryvector.SearchHit{MemoryID: mem.ID, Score: 1.0, Memory: mem})
	}
	return hits, nil
}

// GetByID serves get_memory directly from the primary, independent of any
// in-process cache: content is retrievable as long as the memory exists.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (model.Memory, error) {
	row := s.db.WithContext(ctx).Raw(fmt.Sprintf(`SELECT %s FROM memory_embeddings WHERE id = ?`, memoryColumns), id).Row()
	mem, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Memory{}, errs.New(errs.KindNotFound, "memory not found")
	}
	if err != nil {
		return model.Memory{}, errs.Wrap(errs.KindBackendUnavailable, "pgvector get by id", err)
	}
	return mem, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory scans the memoryColumns projection (no trailing score column).
func scanMemory(row rowScanner) (model.Memory, error) {
	var mem model.Memory
	var metadataJSON []byte
	err := row.Scan(&mem.ID, &mem.Content, &metadataJSON, &mem.ImportanceScore, &mem.LowQuality,
		&mem.UserID, &mem.ConversationID, &mem.CreatedAt, &mem.LastAccessed, &mem.AccessCount)
	if err != nil {
		return model.Memory{}, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &mem.Metadata); err != nil {
			return model.Memory{}, err
		}
	}
	return mem, nil
}

// scanMemoryRow scans the memoryColumns projection plus a trailing
// similarity score column, as produced by Query.
func scanMemoryRow(row rowScanner) (model.Memory, float64, error) {
	var mem model.Memory
	var metadataJSON []byte
	var score float64
	err := row.Scan(&mem.ID, &mem.Content, &metadataJSON, &mem.ImportanceScore, &mem.LowQuality,
		&mem.UserID, &mem.ConversationID, &mem.CreatedAt, &mem.LastAccessed, &mem.AccessCount, &score)
	if err != nil {
		return model.Memory{}, 0, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &mem.Metadata); err != nil {
			return model.Memory{}, 0, err
		}
	}
	return mem, score, nil
}

// filterClause builds a parameterized WHERE clause for metadata containment
// and user/conversation scoping. Column names are fixed literals; only
// values are passed as placeholder args, so this stays injection-safe.
func filterClause(f registryvector.Filters) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}
	if len(f.Metadata) > 0 {
		b, err := json.Marshal(f.Metadata)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "metadata @> ?::jsonb")
		args = append(args, string(b))
	}
	if f.UserID != nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.ConversationID != nil {
		clauses = append(clauses, "conversation_id = ?")
		args = append(args, *f.ConversationID)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Exec("DELETE FROM memory_embeddings WHERE id = ?", id).Error
	if err != nil {
		return errs.Wrap(errs.KindStoreFailed, "pgvector delete", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return errs.Wrap(errs.KindBackendUnavailable, "pgvector health check", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context) (registryvector.Stats, error) {
	var count int64
	if err := s.db.WithContext(ctx).Raw("SELECT count(*) FROM memory_embeddings").Scan(&count).Error; err != nil {
		return registryvector.Stats{}, errs.Wrap(errs.KindStoreFailed, "pgvector stats", err)
	}
	return registryvector.Stats{Count: count, Dimension: model.EmbeddingDim, ProviderName: s.Name()}, nil
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

var (
	_ registryvector.Provider      = (*Store)(nil)
	_ registryvector.RecentGetter  = (*Store)(nil)
	_ registryvector.ContentGetter = (*Store)(nil)
)
