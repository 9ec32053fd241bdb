package registry

import (
	"context"
	"testing"
	"time"

	"github.com/coreagg/indexercore/internal/indexer/types"
)

func TestMemoryHealthStoreUpsertGet(t *testing.T) {
	store := NewMemoryHealthStore()
	ctx := context.Background()

	row := &types.IndexerHealthRow{ID: "yts", TotalChecks: 5, TotalSuccesses: 5}
	if err := store.Upsert(ctx, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Get(ctx, "yts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.TotalChecks != 5 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// Mutating the returned copy must not affect the stored row.
	got.TotalChecks = 99
	refetched, _ := store.Get(ctx, "yts")
	if refetched.TotalChecks != 5 {
		t.Fatalf("expected stored copy unaffected, got %d", refetched.TotalChecks)
	}
}

func TestMemoryHealthStoreGetMissing(t *testing.T) {
	store := NewMemoryHealthStore()
	got, err := store.Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", got, err)
	}
}

func TestMemoryHealthStoreListExcludesDisabledAndLowSuccess(t *testing.T) {
	store := NewMemoryHealthStore()
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	rows := []*types.IndexerHealthRow{
		{ID: "healthy", TotalChecks: 10, TotalSuccesses: 9, IsPublic: true},
		{ID: "struggling", TotalChecks: 10, TotalSuccesses: 1, IsPublic: true},
		{ID: "disabled", TotalChecks: 10, TotalSuccesses: 9, IsPublic: true, DisabledUntil: &future},
	}
	for _, r := range rows {
		_ = store.Upsert(ctx, r)
	}

	out, err := store.List(ctx, HealthFilter{MinSuccessRate: 50, ExcludeDisabled: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ID != "healthy" {
		t.Fatalf("expected only 'healthy', got %+v", out)
	}
}

func TestMemoryHealthStoreListOrdersByPriorityAndLimits(t *testing.T) {
	store := NewMemoryHealthStore()
	ctx := context.Background()

	_ = store.Upsert(ctx, &types.IndexerHealthRow{ID: "slow", TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 900, RequiresSolver: types.SolverYes})
	_ = store.Upsert(ctx, &types.IndexerHealthRow{ID: "fast", TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 50, RequiresSolver: types.SolverNo})

	out, err := store.List(ctx, HealthFilter{OrderByPriorityDesc: true, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ID != "fast" {
		t.Fatalf("expected top-1 'fast', got %+v", out)
	}
}
