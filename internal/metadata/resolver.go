// Package metadata resolves an IMDB or Kitsu ID to a human-readable title
// (§6.4), for requests that name content by ID alone and never supply a
// search string. Resolved titles are cached for 24h since titles don't change.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultCinemetaBase = "https://v3-cinemeta.strem.io"
	defaultKitsuBase    = "https://kitsu.io/api/edge"
)

// Resolver implements search.TitleResolver against Cinemeta (IMDB ids) and
// Kitsu (kitsu ids), with a shared TTL cache.
type Resolver struct {
	cinemetaBase string
	kitsuBase    string
	httpClient   *http.Client
	logger       zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	title     string
	expiresAt time.Time
}

// New builds a Resolver. baseURL overrides the Cinemeta base for testing; an
// empty string uses the public default.
func New(baseURL string, timeout, ttl time.Duration, logger zerolog.Logger) *Resolver {
	cinemeta := baseURL
	if cinemeta == "" {
		cinemeta = defaultCinemetaBase
	}
	return &Resolver{
		cinemetaBase: cinemeta,
		kitsuBase:    defaultKitsuBase,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "metadata-resolver").Logger(),
		cache:        make(map[string]cacheEntry),
		ttl:          ttl,
	}
}

// Resolve returns the title for id, consulting the cache first. Kitsu ids are
// distinguished from IMDB ids by the absence of the "tt" prefix.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	if cached, ok := r.fromCache(id); ok {
		return cached, nil
	}

	var (
		title string
		err   error
	)
	if strings.HasPrefix(id, "tt") {
		title, err = r.resolveImdb(ctx, id)
	} else {
		title, err = r.resolveKitsu(ctx, id)
	}
	if err != nil {
		return "", err
	}

	r.store(id, title)
	return title, nil
}

func (r *Resolver) fromCache(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.title, true
}

func (r *Resolver) store(id, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[id] = cacheEntry{title: title, expiresAt: time.Now().Add(r.ttl)}
}

type cinemetaMeta struct {
	Meta struct {
		Name string `json:"name"`
		Year string `json:"year"`
	} `json:"meta"`
}

func (r *Resolver) resolveImdb(ctx context.Context, imdbID string) (string, error) {
	kind := "movie"
	if strings.Contains(imdbID, ":") {
		kind = "series"
		imdbID = strings.SplitN(imdbID, ":", 2)[0]
	}

	url := fmt.Sprintf("%s/meta/%s/%s.json", r.cinemetaBase, kind, imdbID)
	var payload cinemetaMeta
	if err := r.getJSON(ctx, url, &payload); err != nil {
		if kind == "movie" {
			url = fmt.Sprintf("%s/meta/series/%s.json", r.cinemetaBase, imdbID)
			if err2 := r.getJSON(ctx, url, &payload); err2 == nil {
				return payload.Meta.Name, nil
			}
		}
		return "", fmt.Errorf("metadata: resolve imdb %s: %w", imdbID, err)
	}
	if payload.Meta.Name == "" {
		return "", fmt.Errorf("metadata: no title for imdb %s", imdbID)
	}
	return payload.Meta.Name, nil
}

func (r *Resolver) resolveKitsu(ctx context.Context, kitsuID string) (string, error) {
	id := strings.TrimPrefix(kitsuID, "kitsu:")
	url := fmt.Sprintf("%s/anime/%s", r.kitsuBase, id)

	var single struct {
		Data struct {
			Attributes struct {
				CanonicalTitle string `json:"canonicalTitle"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := r.getJSON(ctx, url, &single); err != nil {
		return "", fmt.Errorf("metadata: resolve kitsu %s: %w", id, err)
	}
	if single.Data.Attributes.CanonicalTitle == "" {
		return "", fmt.Errorf("metadata: no title for kitsu %s", id)
	}
	return single.Data.Attributes.CanonicalTitle, nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
