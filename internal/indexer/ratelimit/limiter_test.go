package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLimiter() *Limiter {
	return NewLimiter(Config{
		QueryLimit:  2,
		QueryPeriod: time.Hour,
		GrabLimit:   1,
		GrabPeriod:  time.Hour,
	}, zerolog.Nop())
}

func TestCheckAndRecordQueryLimit(t *testing.T) {
	l := newTestLimiter()

	if l.CheckQueryLimit("yts") {
		t.Fatal("expected limit not reached initially")
	}
	l.RecordQuery("yts")
	l.RecordQuery("yts")

	if !l.CheckQueryLimit("yts") {
		t.Fatal("expected limit reached after 2 queries")
	}
}

func TestGrabLimitIndependentPerIndexer(t *testing.T) {
	l := newTestLimiter()

	l.RecordGrab("yts")
	if !l.CheckGrabLimit("yts") {
		t.Fatal("expected yts grab limit reached")
	}
	if l.CheckGrabLimit("eztv") {
		t.Fatal("expected eztv grab limit untouched")
	}
}

func TestGetLimitsReportsCounts(t *testing.T) {
	l := newTestLimiter()
	l.RecordQuery("yts")

	status := l.GetLimits("yts")
	if status.QueryCount != 1 || status.QueryLimit != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.QueryLimited {
		t.Fatalf("expected not yet limited: %+v", status)
	}
}

func TestResetClearsState(t *testing.T) {
	l := newTestLimiter()
	l.RecordQuery("yts")
	l.RecordGrab("yts")

	l.Reset("yts")

	status := l.GetLimits("yts")
	if status.QueryCount != 0 || status.GrabCount != 0 {
		t.Fatalf("expected reset counts, got %+v", status)
	}
}

func TestResetAllClearsEveryIndexer(t *testing.T) {
	l := newTestLimiter()
	l.RecordQuery("yts")
	l.RecordQuery("eztv")

	l.ResetAll()

	if l.GetLimits("yts").QueryCount != 0 || l.GetLimits("eztv").QueryCount != 0 {
		t.Fatal("expected all counts reset")
	}
}
