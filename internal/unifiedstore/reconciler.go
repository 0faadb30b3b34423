package unifiedstore

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/corenexus/memory-service/internal/distlock"
)

// Reconciler periodically checks whether mirrors have fallen behind the
// primary: each sweep probes every provider's health, then compares each
// mirror's get_stats count with the primary's and logs the mirrors whose
// count is lower. It does not copy missing memories to a mirror.
type Reconciler struct {
	orchestrator *Orchestrator
	every        time.Duration
	window       time.Duration
	lock         distlock.Lock
}

// NewReconciler builds a Reconciler that sweeps every `every`; `window` is
// stored but not used by the sweep. lock may be nil, in
// which case every replica runs the sweep (fine for a single-instance
// deployment); when set, only the replica currently holding the lease runs it.
func NewReconciler(o *Orchestrator, every, window time.Duration, lock distlock.Lock) *Reconciler {
	return &Reconciler{orchestrator: o, every: every, window: window, lock: lock}
}

// Start begins the periodic reconciliation loop. Returns when ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	if !r.orchestrator.cfg.MirrorOnWrite || len(r.orchestrator.order) < 2 {
		log.Info("reconciler: disabled (no mirrors configured)")
		return
	}

	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.lock != nil {
				held, err := r.lock.TryAcquire(ctx)
				if err != nil {
					log.Error("reconciler: lock acquire failed", "err", err)
					continue
				}
				if !held {
					continue
				}
			}
			r.reconcileOnce(ctx)
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	r.orchestrator.ProbeHealth(ctx)
	snapshot := r.orchestrator.HealthSnapshot(ctx)

	primaryStats, err := r.orchestrator.primary().GetStats(ctx)
	if err != nil {
		log.Error("reconciler: primary stats failed", "err", err)
		return
	}

	for name, health := range snapshot {
		if name == r.orchestrator.order[0] || health == "" {
			continue
		}
		mirrorStats, err := r.orchestrator.providers[name].GetStats(ctx)
		if err != nil {
			log.Error("reconciler: mirror stats failed", "provider", name, "err", err)
			continue
		}
		if mirrorStats.Count < primaryStats.Count {
			log.Info("reconciler: mirror behind primary", "provider", name, "mirrorCount", mirrorStats.Count, "primaryCount", primaryStats.Count)
		}
	}
}
