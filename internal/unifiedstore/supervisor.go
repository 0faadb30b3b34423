// Package unifiedstore orchestrates multiple vector providers behind one
// write/query surface: ordered fallback, best-effort mirroring, health
// tracking and periodic reconciliation. The ticker-driven background loop
// shape is grounded on the teacher's BackgroundIndexer/EvictionService.
package unifiedstore

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Supervisor runs fire-and-forget background work (mirror writes, graph
// ingest) off a buffered queue so a failure there never affects the
// primary write path. Each task gets its own deadline and panic recovery.
type Supervisor struct {
	queue    chan func(context.Context)
	deadline time.Duration
}

// NewSupervisor starts a supervisor with the given queue depth and
// per-task deadline. Call Run to start draining the queue.
func NewSupervisor(queueDepth int, deadline time.Duration) *Supervisor {
	return &Supervisor{
		queue:    make(chan func(context.Context), queueDepth),
		deadline: deadline,
	}
}

// Submit enqueues a task. If the queue is full the task is dropped and
// logged rather than blocking the caller — background work is best-effort.
func (s *Supervisor) Submit(task func(context.Context)) {
	select {
	case s.queue <- task:
	default:
		log.Error("supervisor: queue full, dropping background task")
	}
}

// Run drains the queue until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.queue:
			s.runOne(ctx, task)
		}
	}
}

func (s *Supervisor) runOne(ctx context.Context, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("supervisor: background task panicked", "recover", r)
		}
	}()
	taskCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()
	task(taskCtx)
}
