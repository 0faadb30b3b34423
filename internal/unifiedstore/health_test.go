package unifiedstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

func TestHealthTracker_StartsHealthy(t *testing.T) {
	h := newHealthTracker(3)
	require.Equal(t, registryvector.HealthHealthy, h.state("pgvector"))
}

func TestHealthTracker_SingleFailureDegrades(t *testing.T) {
	h := newHealthTracker(3)
	got := h.record("pgvector", errors.New("timeout"))
	require.Equal(t, registryvector.HealthDegraded, got)
	require.Equal(t, registryvector.HealthDegraded, h.state("pgvector"))
}

func TestHealthTracker_ReachesDownAfterThreshold(t *testing.T) {
	h := newHealthTracker(2)
	h.record("pgvector", errors.New("timeout"))
	got := h.record("pgvector", errors.New("timeout"))
	require.Equal(t, registryvector.HealthDown, got)
	require.Equal(t, registryvector.HealthDown, h.state("pgvector"))
}

func TestHealthTracker_SuccessResetsFailureCount(t *testing.T) {
	h := newHealthTracker(2)
	h.record("pgvector", errors.New("timeout"))
	got := h.record("pgvector", nil)
	require.Equal(t, registryvector.HealthHealthy, got)
	require.Equal(t, registryvector.HealthHealthy, h.state("pgvector"))
}

func TestHealthTracker_TracksProvidersIndependently(t *testing.T) {
	h := newHealthTracker(2)
	h.record("pgvector", errors.New("timeout"))
	h.record("pgvector", errors.New("timeout"))
	h.record("qdrant", nil)

	require.Equal(t, registryvector.HealthDown, h.state("pgvector"))
	require.Equal(t, registryvector.HealthHealthy, h.state("qdrant"))
}

func TestHealthTracker_SnapshotReflectsAllRecordedProviders(t *testing.T) {
	h := newHealthTracker(2)
	h.record("pgvector", errors.New("timeout"))
	h.record("pgvector", errors.New("timeout"))
	h.record("qdrant", errors.New("timeout"))

	snap := h.snapshot()
	require.Equal(t, registryvector.HealthDown, snap["pgvector"])
	require.Equal(t, registryvector.HealthDegraded, snap["qdrant"])
}

func TestHealthTracker_UnknownProviderDefaultsToHealthy(t *testing.T) {
	h := newHealthTracker(2)
	require.Equal(t, registryvector.HealthHealthy, h.state("never-seen"))
}
