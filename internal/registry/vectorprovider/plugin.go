// Package vectorprovider defines the capability contract every vector-store
// backend implements, and the init()-time plugin registry used to select one
// by name, grounded on the teacher's internal/registry/vector plugin pattern.
package vectorprovider

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/corenexus/memory-service/internal/model"
)

// Filters scopes a query or get_recent call: Metadata is matched by
// containment (every key/value must be present in the stored record),
// UserID and ConversationID, when set, must match exactly. An empty
// Filters matches everything.
type Filters struct {
	Metadata       map[string]interface{}
	UserID         *string
	ConversationID *string
}

// Empty reports whether f constrains results at all.
func (f Filters) Empty() bool {
	return len(f.Metadata) == 0 && f.UserID == nil && f.ConversationID == nil
}

// Matches reports whether mem satisfies f. A provider that cannot supply a
// hydrated Memory (mem.ID is the zero value) never matches a non-empty
// filter — there is nothing to check the constraint against.
func (f Filters) Matches(mem model.Memory) bool {
	if f.Empty() {
		return true
	}
	if mem.ID == uuid.Nil {
		return false
	}
	for k, want := range f.Metadata {
		got, ok := mem.Metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	if f.UserID != nil && (mem.UserID == nil || *mem.UserID != *f.UserID) {
		return false
	}
	if f.ConversationID != nil && (mem.ConversationID == nil || *mem.ConversationID != *f.ConversationID) {
		return false
	}
	return true
}

// SearchHit is a single similarity match, scored as 1-cos_distance, clamped
// to [0,1]. Memory is populated when the serving provider can supply full
// content (the primary always can); mirrors that only hold vectors leave it
// at its zero value.
type SearchHit struct {
	MemoryID uuid.UUID
	Score    float64
	Memory   model.Memory
}

// Stats summarizes a provider's current holdings, returned by get_stats.
type Stats struct {
	Count        int64
	Dimension    int
	ProviderName string
}

// Provider is the capability contract of a vector-store backend: store,
// query, delete, health_check, get_stats. GetRecent is optional — backends
// that support it natively implement RecentGetter; UnifiedVectorStore falls
// back to a synthetic query when absent.
type Provider interface {
	// Name identifies this provider instance ("pgvector", "qdrant", "pinecone", "chroma").
	Name() string
	// Store persists one memory's embedding, keyed by its ID. Rejects vectors
	// whose length differs from the deployment's embedding dimension.
	Store(ctx context.Context, mem model.Memory) error
	// Query returns up to limit nearest neighbors of embedding, most similar
	// first, restricted to records matching filters. A provider that cannot
	// push a filter down leaves it to UnifiedVectorStore's post-filter pass.
	Query(ctx context.Context, embedding []float32, limit int, filters Filters) ([]SearchHit, error)
	// Delete removes a memory's embedding. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
	// HealthCheck returns nil if the backend is reachable and serving.
	HealthCheck(ctx context.Context) error
	// GetStats reports the current row/vector count and configured dimension.
	GetStats(ctx context.Context) (Stats, error)
}

// RecentGetter is implemented by providers that can list recently-written
// memories natively (e.g. via an order-by-insertion scroll), without needing
// the synthetic-embedding fallback.
type RecentGetter interface {
	GetRecent(ctx context.Context, limit int, filters Filters) ([]SearchHit, error)
}

// ContentGetter is implemented by providers that can serve a full memory
// record by id directly, bypassing vector search entirely. Only the primary
// provider is required to implement it; get_memory reads through it so a
// memory stays retrievable after eviction from any in-process cache.
type ContentGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Memory, error)
}

// Health is the health state UnifiedVectorStore assigns a provider after
// consecutive probe results.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthDown     Health = "down"
)

// ProbeResult records one health_check outcome for health-state tracking.
type ProbeResult struct {
	At  time.Time
	Err error
}

// Loader constructs a Provider from the running configuration.
type Loader func(ctx context.Context) (Provider, error)

// Plugin is a named, registerable provider constructor.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector provider plugin. Called from each plugin's init().
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named provider plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector provider %q; valid: %v", name, Names())
}
