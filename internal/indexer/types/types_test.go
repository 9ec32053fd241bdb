package types

import "testing"

func TestSuccessRateZeroChecks(t *testing.T) {
	r := &IndexerHealthRow{}
	if r.SuccessRate() != 0 {
		t.Fatalf("expected 0 success rate with no checks, got %v", r.SuccessRate())
	}
}

func TestSuccessRateComputed(t *testing.T) {
	r := &IndexerHealthRow{TotalChecks: 4, TotalSuccesses: 3}
	if got := r.SuccessRate(); got != 75 {
		t.Fatalf("expected 75, got %v", got)
	}
}

func TestPriorityNeverNegativeOrOverHundred(t *testing.T) {
	r := &IndexerHealthRow{TotalChecks: 10, TotalSuccesses: 0, AvgResponseMs: 100000, RequiresSolver: SolverYes}
	if p := r.Priority(true); p < 0 || p > 100 {
		t.Fatalf("priority out of [0,100]: %d", p)
	}

	r2 := &IndexerHealthRow{TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 0, RequiresSolver: SolverNo}
	if p := r2.Priority(true); p < 0 || p > 100 {
		t.Fatalf("priority out of [0,100]: %d", p)
	}
}

func TestPriorityRewardsNoSolverAndSpeed(t *testing.T) {
	fast := &IndexerHealthRow{TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 50, RequiresSolver: SolverNo}
	slow := &IndexerHealthRow{TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 900, RequiresSolver: SolverYes}

	if fast.Priority(true) <= slow.Priority(true) {
		t.Fatalf("expected fast/no-solver indexer to outrank slow/solver indexer: fast=%d slow=%d",
			fast.Priority(true), slow.Priority(true))
	}
}

func TestPriorityWithoutLastCheckSucceeded(t *testing.T) {
	r := &IndexerHealthRow{TotalChecks: 10, TotalSuccesses: 10, AvgResponseMs: 50, RequiresSolver: SolverNo}
	withSuccess := r.Priority(true)
	withoutSuccess := r.Priority(false)
	if withoutSuccess >= withSuccess {
		t.Fatalf("expected lower priority when last check didn't succeed: with=%d without=%d", withSuccess, withoutSuccess)
	}
}

func TestSupportsContentType(t *testing.T) {
	d := &IndexerDefinition{ContentTypes: []ContentType{ContentMovie}}
	if !d.SupportsContentType(ContentMovie) {
		t.Fatal("expected movie support")
	}
	if d.SupportsContentType(ContentSeries) {
		t.Fatal("expected no series support")
	}

	empty := &IndexerDefinition{}
	if empty.SupportsContentType(ContentMovie) {
		t.Fatal("expected empty ContentTypes to support nothing")
	}
}

func TestSessionEntryExpired(t *testing.T) {
	e := &SessionEntry{}
	if !e.Expired(e.ExpiresAt) {
		t.Fatal("expected zero-value entry expired at its own ExpiresAt")
	}
}
