package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestResolveImdbMovie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meta/movie/tt0111161.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"meta":{"name":"The Shawshank Redemption","year":"1994"}}`))
	}))
	defer srv.Close()

	r := New(srv.URL, 2*time.Second, time.Hour, zerolog.Nop())
	title, err := r.Resolve(context.Background(), "tt0111161")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if title != "The Shawshank Redemption" {
		t.Fatalf("unexpected title: %q", title)
	}
}

func TestResolveImdbSeriesEpisode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meta/series/tt0903747.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"meta":{"name":"Breaking Bad"}}`))
	}))
	defer srv.Close()

	r := New(srv.URL, 2*time.Second, time.Hour, zerolog.Nop())
	title, err := r.Resolve(context.Background(), "tt0903747:1:1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if title != "Breaking Bad" {
		t.Fatalf("unexpected title: %q", title)
	}
}

func TestResolveCachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"meta":{"name":"Cached Title"}}`))
	}))
	defer srv.Close()

	r := New(srv.URL, 2*time.Second, time.Hour, zerolog.Nop())
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "tt1234567"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := r.Resolve(ctx, "tt1234567"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream call due to cache, got %d", calls)
	}
}

func TestResolveKitsuAnime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"attributes":{"canonicalTitle":"Cowboy Bebop"}}}`))
	}))
	defer srv.Close()

	r := New("", 2*time.Second, time.Hour, zerolog.Nop())
	r.kitsuBase = srv.URL

	title, err := r.Resolve(context.Background(), "kitsu:1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if title != "Cowboy Bebop" {
		t.Fatalf("unexpected title: %q", title)
	}
}

func TestResolveMissingTitleErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{}}`))
	}))
	defer srv.Close()

	r := New(srv.URL, 2*time.Second, time.Hour, zerolog.Nop())
	if _, err := r.Resolve(context.Background(), "tt9999999"); err == nil {
		t.Fatal("expected error for missing title")
	}
}
