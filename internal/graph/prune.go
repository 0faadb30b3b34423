package graph

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/corenexus/memory-service/internal/distlock"
	"github.com/corenexus/memory-service/internal/errs"
)

// OnMemoryDeleted removes a deleted memory's entity mentions and decrements
// the mention_count of every node it touched. Nodes left with no remaining
// mentions become eligible for the next Pruner sweep. Best-effort: the
// memory itself is already gone from the vector stores by the time this
// runs, so a failure here only delays graph cleanup, not consistency.
func (p *Provider) OnMemoryDeleted(ctx context.Context, memoryID uuid.UUID) error {
	if err := p.requireEnabled(); err != nil {
		return err
	}
	db, err := p.pool(ctx)
	if err != nil {
		return err
	}

	var entityIDs []uuid.UUID
	if err := db.WithContext(ctx).Raw(
		"SELECT DISTINCT entity_id FROM memory_entity_map WHERE memory_id = ?", memoryID,
	).Scan(&entityIDs).Error; err != nil {
		return errs.Wrap(errs.KindStoreFailed, "graph: load mentions for deleted memory", err)
	}
	if len(entityIDs) == 0 {
		return nil
	}

	if err := db.WithContext(ctx).Exec(
		"DELETE FROM memory_entity_map WHERE memory_id = ?", memoryID,
	).Error; err != nil {
		return errs.Wrap(errs.KindStoreFailed, "graph: delete mentions", err)
	}

	if err := db.WithContext(ctx).Exec(
		`UPDATE graph_nodes SET mention_count = GREATEST(mention_count - 1, 0)
			WHERE id = ANY(?)`, entityIDs,
	).Error; err != nil {
		return errs.Wrap(errs.KindStoreFailed, "graph: decrement mention counts", err)
	}
	return nil
}

// Pruner periodically removes graph nodes with no remaining mentions.
// Relationships referencing a pruned node cascade via the
// graph_relationships foreign keys. Grounded on the teacher's
// EvictionService ticker-and-batch shape, retargeted at orphaned entity
// nodes instead of soft-deleted conversation groups.
type Pruner struct {
	provider  *Provider
	interval  time.Duration
	batchSize int
	lock      distlock.Lock
}

// NewPruner builds a Pruner. A non-positive interval or batchSize falls
// back to a sane default so a zero-value config never disables pruning
// silently. lock may be nil to run unconditionally (single-instance
// deployments); when set, only the lease holder sweeps.
func NewPruner(p *Provider, interval time.Duration, batchSize int, lock distlock.Lock) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Pruner{provider: p, interval: interval, batchSize: batchSize, lock: lock}
}

// Start runs the prune loop until ctx is cancelled.
func (pr *Pruner) Start(ctx context.Context) {
	if !pr.provider.cfg.GraphEnabled {
		return
	}
	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pr.lock != nil {
				held, err := pr.lock.TryAcquire(ctx)
				if err != nil {
					log.Error("graph: pruner lock acquire failed", "err", err)
					continue
				}
				if !held {
					continue
				}
			}
			pr.runOnce(ctx)
		}
	}
}

func (pr *Pruner) runOnce(ctx context.Context) {
	db, err := pr.provider.pool(ctx)
	if err != nil {
		log.Error("graph: pruner pool unavailable", "err", err)
		return
	}

	pruned := 0
	for {
		var ids []uuid.UUID
		err := db.WithContext(ctx).Raw(
			"SELECT id FROM graph_nodes WHERE mention_count <= 0 LIMIT ?", pr.batchSize,
		).Scan(&ids).Error
		if err != nil {
			log.Error("graph: pruner find orphans failed", "err", err)
			return
		}
		if len(ids) == 0 {
			break
		}
		if err := db.WithContext(ctx).Exec("DELETE FROM graph_nodes WHERE id = ANY(?)", ids).Error; err != nil {
			log.Error("graph: pruner delete failed", "err", err)
			return
		}
		pruned += len(ids)
		if len(ids) < pr.batchSize {
			break
		}
	}
	if pruned > 0 {
		log.Info("graph: pruned orphaned nodes", "count", pruned)
	}
}
