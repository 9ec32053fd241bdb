package search

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/config"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

type fakeDriver struct {
	results []types.ResultEntry
}

func (f *fakeDriver) Search(_ context.Context, _ types.SearchRequest) []types.ResultEntry {
	return f.results
}

type fakeResolver struct {
	title string
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (string, error) {
	return f.title, f.err
}

func newTestConfig() config.SearchConfig {
	return config.SearchConfig{
		TopN:           30,
		FastTierSize:   8,
		SlowTierSize:   5,
		MinSuccessRate: 20,
		SkipSlowAt:     10,
		InteractiveMs:  2000,
		BackgroundMs:   5000,
	}
}

func TestSearchManualModeDedupesAndFilters(t *testing.T) {
	d := New(nil, nil, nil, &fakeResolver{title: "The Matrix"}, newTestConfig(), zerolog.Nop())
	d.RegisterHandCoded("yts", &fakeDriver{results: []types.ResultEntry{
		{InfoHash: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Title: "The Matrix 1999 1080p"},
		{InfoHash: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Title: "The Matrix duplicate"},
		{InfoHash: "not-a-hash", Title: "The Matrix invalid hash"},
		{InfoHash: "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", Title: "Completely Unrelated Show"},
	}})

	req := types.SearchRequest{
		ID:         "tt0133093",
		Type:       types.ContentMovie,
		Providers:  []string{"yts"},
		DeadlineMs: 2000,
	}

	out, err := d.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result after dedupe+relevance filter, got %d: %+v", len(out), out)
	}
	if out[0].InfoHash != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("expected lowercased hash, got %q", out[0].InfoHash)
	}
}

func TestSearchUngatedWhenTitleResolutionFails(t *testing.T) {
	d := New(nil, nil, nil, &fakeResolver{err: context.DeadlineExceeded}, newTestConfig(), zerolog.Nop())
	d.RegisterHandCoded("yts", &fakeDriver{results: []types.ResultEntry{
		{InfoHash: "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC", Title: "Totally Unrelated Text"},
	}})

	req := types.SearchRequest{ID: "tt9999999", Type: types.ContentMovie, Providers: []string{"yts"}, DeadlineMs: 2000}
	out, err := d.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected result kept when ungated (no relevance filter), got %d", len(out))
	}
}

func TestSearchHonorsExplicitTitleWithoutResolver(t *testing.T) {
	d := New(nil, nil, nil, nil, newTestConfig(), zerolog.Nop())
	d.RegisterHandCoded("yts", &fakeDriver{results: []types.ResultEntry{
		{InfoHash: "DDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD", Title: "Dune Part Two 2024"},
	}})

	req := types.SearchRequest{ID: "tt9362722", Type: types.ContentMovie, Title: "Dune Part Two", Providers: []string{"yts"}, DeadlineMs: 2000}
	out, err := d.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected matching result, got %d", len(out))
	}
}

func TestSearchDeadlineStopsSlowDrivers(t *testing.T) {
	d := New(nil, nil, nil, &fakeResolver{title: "Anything"}, newTestConfig(), zerolog.Nop())

	slow := &blockingDriver{}
	d.RegisterHandCoded("slow", slow)

	req := types.SearchRequest{ID: "tt0000000", Type: types.ContentMovie, Providers: []string{"slow"}, DeadlineMs: 50}

	start := time.Now()
	out, err := d.Search(context.Background(), req)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no results from a driver that never returns, got %d", len(out))
	}
	if elapsed > time.Second {
		t.Fatalf("expected dispatch to respect the deadline, took %v", elapsed)
	}
}

type blockingDriver struct{}

func (b *blockingDriver) Search(ctx context.Context, _ types.SearchRequest) []types.ResultEntry {
	<-ctx.Done()
	return nil
}

func TestIsValidInfoHash(t *testing.T) {
	cases := map[string]bool{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": true,
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": false, // dedupe lowercases before validating
		"too-short":                                 false,
		"":                                           false,
	}
	for hash, want := range cases {
		if got := isValidInfoHash(hash); got != want {
			t.Errorf("isValidInfoHash(%q) = %v, want %v", hash, got, want)
		}
	}
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	in := []types.ResultEntry{
		{InfoHash: "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", Seeders: 10},
		{InfoHash: "EEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEE", Seeders: 999},
	}
	out := dedupe(in)
	if len(out) != 1 || out[0].Seeders != 10 {
		t.Fatalf("expected first occurrence kept, got %+v", out)
	}
}
