package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/indexer/types"
)

func newTestStore() *Store {
	return NewStore(30*time.Minute, 60*time.Second, zerolog.Nop())
}

func TestPutAndGetRoundTrip(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Put(ctx, "example.com", []string{"a=b"}, "agent", time.Now().Add(10*time.Minute))

	entry := s.Get(ctx, "example.com")
	if entry == nil {
		t.Fatal("expected cached entry, got nil")
	}
	if entry.UserAgent != "agent" {
		t.Fatalf("unexpected user agent: %q", entry.UserAgent)
	}
}

func TestPutRejectsBelowMinTTL(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.Put(ctx, "example.com", []string{"a=b"}, "agent", time.Now().Add(10*time.Second))

	if entry := s.Get(ctx, "example.com"); entry != nil {
		t.Fatalf("expected entry rejected below min TTL, got %+v", entry)
	}
}

func TestPutClampsToMaxTTL(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	farFuture := time.Now().Add(24 * time.Hour)
	s.Put(ctx, "example.com", nil, "agent", farFuture)

	entry := s.Get(ctx, "example.com")
	if entry == nil {
		t.Fatal("expected entry, got nil")
	}
	if !entry.ExpiresAt.Before(farFuture) {
		t.Fatalf("expected expiry clamped below %v, got %v", farFuture, entry.ExpiresAt)
	}
}

func TestGetExpiredReturnsNil(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	s.mu.Lock()
	s.sessions["example.com"] = &types.SessionEntry{
		Host:      "example.com",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	s.mu.Unlock()

	if entry := s.Get(ctx, "example.com"); entry != nil {
		t.Fatalf("expected nil for expired entry, got %+v", entry)
	}
}

type fakePersister struct {
	stored map[string]*types.SessionEntry
}

func (f *fakePersister) PutSession(_ context.Context, entry *types.SessionEntry) error {
	f.stored[entry.Host] = entry
	return nil
}

func (f *fakePersister) GetSession(_ context.Context, host string) (*types.SessionEntry, error) {
	return f.stored[host], nil
}

func TestPersisterFallbackOnMiss(t *testing.T) {
	s := newTestStore()
	persister := &fakePersister{stored: map[string]*types.SessionEntry{
		"example.com": {
			Host:      "example.com",
			UserAgent: "persisted-agent",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		},
	}}
	s.SetPersister(persister)

	entry := s.Get(context.Background(), "example.com")
	if entry == nil {
		t.Fatal("expected persisted entry on in-memory miss")
	}
	if entry.UserAgent != "persisted-agent" {
		t.Fatalf("unexpected user agent: %q", entry.UserAgent)
	}
}

func TestClearRemovesEntry(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	s.Put(ctx, "example.com", nil, "agent", time.Now().Add(10*time.Minute))
	s.Clear("example.com")
	if entry := s.Get(ctx, "example.com"); entry != nil {
		t.Fatalf("expected entry cleared, got %+v", entry)
	}
}

// fakeSolver lets Fetch tests drive the solver branch without a real
// challenge-solver sidecar.
type fakeSolver struct {
	enabled    bool
	result     *SolveResult
	err        error
	solveCalls int
}

func (f *fakeSolver) Enabled() bool { return f.enabled }

func (f *fakeSolver) Solve(ctx context.Context, url string, maxTimeoutMs int) (*SolveResult, error) {
	f.solveCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// newChallengeServer blocks the first request with a Cloudflare JS
// challenge page and serves an ordinary 200 afterward, modeling the "retry
// once after a successful solve" contract of §4.D item 3.
func newChallengeServer(t *testing.T) *httptest.Server {
	t.Helper()
	var calls int
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("<html><head><title>Just a moment...</title></head><body></body></html>"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
}

func TestFetchUsesRealCfClearanceExpiryForSessionTTL(t *testing.T) {
	srv := newChallengeServer(t)
	defer srv.Close()

	store := newTestStore()
	solver := &fakeSolver{enabled: true, result: &SolveResult{
		Cookies:           []string{"cf_clearance=abc"},
		UserAgent:         "solved-agent",
		CfClearanceExpiry: time.Now().Add(10 * time.Minute),
	}}
	fetcher := NewFetcher(store, solver, 5*time.Second, zerolog.Nop())

	resp, err := fetcher.Fetch(context.Background(), srv.URL, Options{UseSolver: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the post-solve retry to succeed, got %d", resp.StatusCode)
	}
	if solver.solveCalls != 1 {
		t.Fatalf("expected exactly one solve call, got %d", solver.solveCalls)
	}

	host, _ := hostOf(srv.URL)
	entry := store.Get(context.Background(), host)
	if entry == nil {
		t.Fatal("expected a cached session after a successful solve")
	}
	// Cached TTL should track cf_clearance expiry - 1m (~9m out), well under
	// the 30m default the test store was built with.
	if entry.ExpiresAt.After(time.Now().Add(10*time.Minute)) || entry.ExpiresAt.Before(time.Now().Add(5*time.Minute)) {
		t.Fatalf("expected TTL derived from cf_clearance expiry, got %v", entry.ExpiresAt)
	}
}

func TestFetchSkipsCacheWhenCfClearanceExpiresWithinBoundary(t *testing.T) {
	srv := newChallengeServer(t)
	defer srv.Close()

	store := newTestStore()
	solver := &fakeSolver{enabled: true, result: &SolveResult{
		Cookies:           []string{"cf_clearance=abc"},
		UserAgent:         "solved-agent",
		CfClearanceExpiry: time.Now().Add(30 * time.Second),
	}}
	fetcher := NewFetcher(store, solver, 5*time.Second, zerolog.Nop())

	if _, err := fetcher.Fetch(context.Background(), srv.URL, Options{UseSolver: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	host, _ := hostOf(srv.URL)
	if entry := store.Get(context.Background(), host); entry != nil {
		t.Fatalf("expected no cached session when cf_clearance expiry < now+60s, got %+v", entry)
	}
}
