package unifiedstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
)

type fakeLock struct {
	held  bool
	err   error
	calls int
}

func (l *fakeLock) TryAcquire(ctx context.Context) (bool, error) {
	l.calls++
	return l.held, l.err
}

func TestReconcileOnce_DoesNotErrorWhenMirrorBehindPrimary(t *testing.T) {
	cfg := testConfig("pgvector", "pgvector", "qdrant")
	cfg.MirrorOnWrite = true
	primary := &fakeProvider{name: "pgvector", hits: []registryvector.SearchHit{{}, {}}}
	mirror := &fakeProvider{name: "qdrant"}
	o, err := New(cfg, map[string]registryvector.Provider{"pgvector": primary, "qdrant": mirror}, NewSupervisor(8, time.Second))
	require.NoError(t, err)

	r := NewReconciler(o, time.Minute, time.Minute, nil)
	r.reconcileOnce(context.Background())
}

func TestReconciler_StartReturnsImmediatelyWithoutMirrors(t *testing.T) {
	cfg := testConfig("pgvector", "pgvector")
	cfg.MirrorOnWrite = true
	primary := &fakeProvider{name: "pgvector"}
	o, err := New(cfg, map[string]registryvector.Provider{"pgvector": primary}, NewSupervisor(8, time.Second))
	require.NoError(t, err)

	r := NewReconciler(o, time.Millisecond, time.Minute, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return promptly when no mirrors are configured")
	}
}

func TestReconciler_SkipsSweepWhenLockNotHeld(t *testing.T) {
	cfg := testConfig("pgvector", "pgvector", "qdrant")
	cfg.MirrorOnWrite = true
	primary := &fakeProvider{name: "pgvector"}
	mirror := &fakeProvider{name: "qdrant"}
	o, err := New(cfg, map[string]registryvector.Provider{"pgvector": primary, "qdrant": mirror}, NewSupervisor(8, time.Second))
	require.NoError(t, err)

	lock := &fakeLock{held: false}
	r := NewReconciler(o, 10*time.Millisecond, time.Minute, lock)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	r.Start(ctx)

	require.Greater(t, lock.calls, 0, "lock should have been attempted at least once")
}
