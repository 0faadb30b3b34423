package unifiedstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/model"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

// syntheticQueryVector is used for the "no embedding available" get_recent
// fallback on providers that don't implement RecentGetter: a fixed,
// deterministic low-magnitude vector stands in for "nearest to nothing in
// particular", and providers are asked to rank by whatever ordering they
// apply to ties, which in practice returns insertion-adjacent rows.
func syntheticQueryVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 1e-3
	}
	return v
}

// Orchestrator is the UnifiedVectorStore: a primary provider, zero or more
// mirrors, ordered read fallback, and provider health tracking.
type Orchestrator struct {
	cfg        *config.Config
	providers  map[string]registryvector.Provider
	order      []string // configured order, primary first
	health     *healthTracker
	supervisor *Supervisor
}

// New builds an Orchestrator from the loaded providers, keyed by name,
// using cfg.Providers for ordering and cfg.PrimaryProvider as the primary.
func New(cfg *config.Config, providers map[string]registryvector.Provider, supervisor *Supervisor) (*Orchestrator, error) {
	if _, ok := providers[cfg.PrimaryProvider]; !ok {
		return nil, fmt.Errorf("unifiedstore: primary provider %q not loaded", cfg.PrimaryProvider)
	}
	order := []string{cfg.PrimaryProvider}
	for _, p := range cfg.EnabledProviders() {
		if p.Name != cfg.PrimaryProvider {
			order = append(order, p.Name)
		}
	}
	return &Orchestrator{
		cfg:        cfg,
		providers:  providers,
		order:      order,
		health:     newHealthTracker(cfg.DownAfterFailures),
		supervisor: supervisor,
	}, nil
}

func (o *Orchestrator) primary() registryvector.Provider {
	return o.providers[o.order[0]]
}

// Add writes mem to the primary provider synchronously and, if
// mirror_on_write is enabled, schedules best-effort asynchronous writes to
// every other configured provider. Mirror failures are logged, never
// surfaced to the caller.
func (o *Orchestrator) Add(ctx context.Context, mem model.Memory) error {
	if len(mem.Embedding) != o.cfg.EmbeddingDim {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("embedding has %d dimensions, want %d", len(mem.Embedding), o.cfg.EmbeddingDim))
	}
	primaryName := o.order[0]
	err := o.primary().Store(ctx, mem)
	o.health.record(primaryName, err)
	if err != nil {
		return errs.Wrap(errs.KindStoreFailed, "primary provider store failed", err)
	}

	if o.cfg.MirrorOnWrite {
		for _, name := range o.order[1:] {
			name, provider := name, o.providers[name]
			o.supervisor.Submit(func(ctx context.Context) {
				mErr := provider.Store(ctx, mem)
				o.health.record(name, mErr)
				if mErr != nil {
					log.Error("unifiedstore: mirror write failed", "provider", name, "memoryId", mem.ID, "err", mErr)
				}
			})
		}
	}
	return nil
}

// Query runs a similarity search according to the configured ReadStrategy.
// An empty embedding (len 0) is treated as "get most recent": providers
// implementing RecentGetter are asked directly; others are queried with a
// synthetic low-magnitude embedding. Results are oversampled by the caller
// and post-filtered here against filters (metadata containment, user/
// conversation scoping) before being handed back. The returned provider
// name identifies which backend actually served the results (the
// fan_out_merge strategy reports "fan_out").
func (o *Orchestrator) Query(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, string, error) {
	if len(embedding) == 0 {
		embedding = nil
	} else if len(embedding) != o.cfg.EmbeddingDim {
		return nil, "", errs.New(errs.KindInvalidInput, fmt.Sprintf("query embedding has %d dimensions, want %d", len(embedding), o.cfg.EmbeddingDim))
	}

	var hits []registryvector.SearchHit
	var servedBy string
	var err error
	switch o.cfg.ReadStrategy {
	case config.ReadFanOutMerge:
		hits, err = o.queryFanOut(ctx, embedding, limit, filters)
		servedBy = "fan_out"
	case config.ReadPrimaryThenFallback:
		hits, servedBy, err = o.queryWithFallback(ctx, embedding, limit, filters)
	default:
		hits, err = o.queryOne(ctx, o.order[0], embedding, limit, filters)
		servedBy = o.order[0]
	}
	if err != nil {
		return nil, "", err
	}
	return applyFilters(hits, filters), servedBy, nil
}

// applyFilters drops hits that don't satisfy filters. Providers that push
// filters down at the query itself (pgvector) already return a matching
// set; this is the post-filter pass §4.2 requires for everyone else.
func applyFilters(hits []registryvector.SearchHit, filters registryvector.Filters) []registryvector.SearchHit {
	if filters.Empty() {
		return hits
	}
	out := make([]registryvector.SearchHit, 0, len(hits))
	for _, h := range hits {
		if filters.Matches(h.Memory) {
			out = append(out, h)
		}
	}
	return out
}

func (o *Orchestrator) queryOne(ctx context.Context, name string, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	provider := o.providers[name]
	var hits []registryvector.SearchHit
	var err error
	if embedding == nil {
		if rg, ok := provider.(registryvector.RecentGetter); ok {
			hits, err = rg.GetRecent(ctx, limit, filters)
		} else {
			hits, err = provider.Query(ctx, syntheticQueryVector(model.EmbeddingDim), limit, filters)
		}
	} else {
		hits, err = provider.Query(ctx, embedding, limit, filters)
	}
	o.health.record(name, err)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, fmt.Sprintf("provider %s query failed", name), err)
	}
	return hits, nil
}

func (o *Orchestrator) queryWithFallback(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, string, error) {
	var lastErr error
	for _, name := range o.order {
		hits, err := o.queryOne(ctx, name, embedding, limit, filters)
		if err == nil {
			return hits, name, nil
		}
		lastErr = err
		log.Error("unifiedstore: query fallback to next provider", "failed", name, "err", err)
	}
	return nil, "", errs.Wrap(errs.KindBackendUnavailable, "all providers failed", lastErr)
}

func (o *Orchestrator) queryFanOut(ctx context.Context, embedding []float32, limit int, filters registryvector.Filters) ([]registryvector.SearchHit, error) {
	type result struct {
		hits []registryvector.SearchHit
		err  error
	}
	results := make([]result, len(o.order))
	var wg sync.WaitGroup
	for i, name := range o.order {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := o.queryOne(ctx, name, embedding, limit, filters)
			results[i] = result{hits: hits, err: err}
		}()
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	var merged []registryvector.SearchHit
	var anyOK bool
	for _, r := range results {
		if r.err != nil {
			continue
		}
		anyOK = true
		for _, h := range r.hits {
			if seen[h.MemoryID] {
				continue
			}
			seen[h.MemoryID] = true
			merged = append(merged, h)
		}
	}
	if !anyOK {
		return nil, errs.New(errs.KindBackendUnavailable, "all providers failed")
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// GetByID serves get_memory(id) by reading the primary provider directly,
// per §4.5: retrieval of a memory's full record never depends on any
// in-process cache staying warm.
func (o *Orchestrator) GetByID(ctx context.Context, id uuid.UUID) (model.Memory, error) {
	cg, ok := o.primary().(registryvector.ContentGetter)
	if !ok {
		return model.Memory{}, errs.New(errs.KindBackendUnavailable, "primary provider does not support direct lookup by id")
	}
	return cg.GetByID(ctx, id)
}

// Delete removes mem from the primary provider synchronously and mirrors
// the deletion to the rest, same best-effort semantics as Add.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	primaryName := o.order[0]
	err := o.primary().Delete(ctx, id)
	o.health.record(primaryName, err)
	if err != nil {
		return errs.Wrap(errs.KindStoreFailed, "primary provider delete failed", err)
	}

	for _, name := range o.order[1:] {
		name, provider := name, o.providers[name]
		o.supervisor.Submit(func(ctx context.Context) {
			mErr := provider.Delete(ctx, id)
			o.health.record(name, mErr)
			if mErr != nil {
				log.Error("unifiedstore: mirror delete failed", "provider", name, "memoryId", id, "err", mErr)
			}
		})
	}
	return nil
}

// HealthSnapshot reports the health state of every provider that has
// recorded at least one outcome. It carries no get_stats reading; Stats
// serves those.
func (o *Orchestrator) HealthSnapshot(ctx context.Context) map[string]registryvector.Health {
	return o.health.snapshot()
}

// Stats returns get_stats for every configured provider, keyed by name.
func (o *Orchestrator) Stats(ctx context.Context) map[string]registryvector.Stats {
	out := make(map[string]registryvector.Stats, len(o.order))
	for _, name := range o.order {
		stats, err := o.providers[name].GetStats(ctx)
		if err != nil {
			log.Error("unifiedstore: get_stats failed", "provider", name, "err", err)
			continue
		}
		out[name] = stats
	}
	return out
}

// ProbeHealth runs health_check against every configured provider once and
// records the outcome. Intended to be called on a ticker by StartHealthProbe.
func (o *Orchestrator) ProbeHealth(ctx context.Context) {
	for _, name := range o.order {
		err := o.providers[name].HealthCheck(ctx)
		o.health.record(name, err)
	}
}
