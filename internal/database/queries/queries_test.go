package queries

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreagg/indexercore/internal/database"
	"github.com/coreagg/indexercore/internal/indexer/registry"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

func newTestQueries(t *testing.T) *Queries {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db.Conn())
}

func TestUpsertAndGetHealthRow(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	row := &types.IndexerHealthRow{
		ID:                  "yts",
		LastCheckedAt:       time.Now(),
		TotalChecks:         10,
		TotalSuccesses:      9,
		ConsecutiveFailures: 0,
		Enabled:             true,
		RequiresSolver:      types.SolverNo,
		AvgResponseMs:       120,
		IsPublic:            true,
	}
	if err := q.Upsert(ctx, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := q.Get(ctx, "yts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected row, got nil")
	}
	if got.TotalSuccesses != 9 || got.RequiresSolver != types.SolverNo {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestGetMissingReturnsNilNil(t *testing.T) {
	q := newTestQueries(t)
	got, err := q.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil row, got %+v", got)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	disabledUntil := time.Now().Add(time.Hour)
	rows := []*types.IndexerHealthRow{
		{ID: "fast", TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 50, Enabled: true, RequiresSolver: types.SolverNo, IsPublic: true},
		{ID: "slow", TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 900, Enabled: true, RequiresSolver: types.SolverYes, IsPublic: true},
		{ID: "disabled", TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 50, Enabled: false, DisabledUntil: &disabledUntil, RequiresSolver: types.SolverNo, IsPublic: true},
		{ID: "private", TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 50, Enabled: true, RequiresSolver: types.SolverNo, IsPublic: false},
	}
	for _, r := range rows {
		if err := q.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.ID, err)
		}
	}

	out, err := q.List(ctx, registry.HealthFilter{
		PublicOnly:          true,
		ExcludeDisabled:     true,
		OrderByPriorityDesc: true,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var ids []string
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 rows (fast, slow), got %v", ids)
	}
	if ids[0] != "fast" {
		t.Fatalf("expected fast first by priority, got %v", ids)
	}
}

func TestSessionPersistence(t *testing.T) {
	q := newTestQueries(t)
	ctx := context.Background()

	entry := &types.SessionEntry{
		Host:      "example.com",
		Cookies:   []string{"cf_clearance=abc", "session=xyz"},
		UserAgent: "test-agent",
		ExpiresAt: time.Now().Add(30 * time.Minute).Truncate(time.Second),
	}
	if err := q.PutSession(ctx, entry); err != nil {
		t.Fatalf("put session: %v", err)
	}

	got, err := q.GetSession(ctx, "example.com")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if len(got.Cookies) != 2 || got.Cookies[0] != "cf_clearance=abc" {
		t.Fatalf("unexpected cookies: %v", got.Cookies)
	}

	if err := q.DeleteSession(ctx, "example.com"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	got, err = q.GetSession(ctx, "example.com")
	if err != nil {
		t.Fatalf("get session after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil session after delete, got %+v", got)
	}
}
