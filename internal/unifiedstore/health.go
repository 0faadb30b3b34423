package unifiedstore

import (
	"sync"

	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

// healthTracker records consecutive probe outcomes per provider and derives
// a Health state: healthy, degraded after one failure, down after
// downAfterFailures consecutive failures.
type healthTracker struct {
	mu                sync.RWMutex
	consecutiveFails  map[string]int
	downAfterFailures int
}

func newHealthTracker(downAfterFailures int) *healthTracker {
	return &healthTracker{
		consecutiveFails:  make(map[string]int),
		downAfterFailures: downAfterFailures,
	}
}

func (h *healthTracker) record(provider string, err error) registryvector.Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.consecutiveFails[provider] = 0
		return registryvector.HealthHealthy
	}
	h.consecutiveFails[provider]++
	if h.consecutiveFails[provider] >= h.downAfterFailures {
		return registryvector.HealthDown
	}
	return registryvector.HealthDegraded
}

func (h *healthTracker) state(provider string) registryvector.Health {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fails := h.consecutiveFails[provider]
	switch {
	case fails == 0:
		return registryvector.HealthHealthy
	case fails >= h.downAfterFailures:
		return registryvector.HealthDown
	default:
		return registryvector.HealthDegraded
	}
}

func (h *healthTracker) snapshot() map[string]registryvector.Health {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]registryvector.Health, len(h.consecutiveFails))
	for name, fails := range h.consecutiveFails {
		switch {
		case fails == 0:
			out[name] = registryvector.HealthHealthy
		case fails >= h.downAfterFailures:
			out[name] = registryvector.HealthDown
		default:
			out[name] = registryvector.HealthDegraded
		}
	}
	return out
}
