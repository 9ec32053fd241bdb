// Package drivers implements the per-indexer search drivers of §4.G: a
// generic template-driven driver built on the cardigann definition engine,
// and a small set of hand-coded drivers for sites the generic engine can't
// express cleanly. Every driver shares one signature and never returns an
// error — on any failure it returns an empty result slice, so a single bad
// indexer can never fail a search for the caller.
package drivers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/indexer"
	"github.com/coreagg/indexercore/internal/indexer/cardigann"
	"github.com/coreagg/indexercore/internal/indexer/session"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

// Driver is the common shape every per-indexer search driver implements.
type Driver interface {
	Search(ctx context.Context, req types.SearchRequest) []types.ResultEntry
}

// Generic is the template-driven driver: it resolves a definition's search
// paths by substituting query placeholders, walks mirrors until one responds
// without being blocked, and extracts results via the definition's selectors.
type Generic struct {
	def     *cardigann.Definition
	fetcher *session.Fetcher
	logger  zerolog.Logger
	timeout time.Duration

	loginMu     sync.Mutex
	loginHandle *cardigann.LoginHandler
	loggedIn    bool
}

// NewGeneric builds a Generic driver for one parsed definition.
func NewGeneric(def *cardigann.Definition, fetcher *session.Fetcher, timeout time.Duration, logger zerolog.Logger) *Generic {
	return &Generic{
		def:     def,
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger.With().Str("component", "generic-driver").Str("indexer", def.ID).Logger(),
	}
}

// Search implements Driver. Per §4.G: per-driver timeout bounds the whole
// call including retries, at most one retry on a transient network error,
// and a challenge block (fetcher already attempted the solver per its own
// policy) yields an empty result rather than an error.
func (g *Generic) Search(ctx context.Context, req types.SearchRequest) []types.ResultEntry {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpClient := g.fetcher.Client()
	if g.def.HasLogin() {
		handler, err := g.ensureLoggedIn(ctx)
		if err != nil {
			g.logger.Debug().Err(err).Msg("login failed, skipping search")
			return nil
		}
		httpClient = handler.GetHTTPClient()
	}

	query := cardigann.SearchQuery{
		Query:   req.Title,
		Type:    searchType(req.Type),
		Season:  req.Season,
		Episode: req.Episode,
		Title:   req.Title,
	}

	links := g.def.Links
	if len(links) == 0 {
		links = []string{""}
	}

	var raw []cardigann.SearchResult
	var err error
	for _, link := range links {
		mirror := *g.def
		mirror.Links = []string{link}
		engine := cardigann.NewSearchEngine(&mirror, httpClient, g.logger)

		err = retry.Do(
			func() error {
				var searchErr error
				raw, searchErr = engine.Search(ctx, query, nil)
				return searchErr
			},
			retry.Attempts(2),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
			retry.RetryIf(indexer.IsNetworkError),
		)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		g.logger.Debug().Err(err).Msg("generic driver search failed")
		return nil
	}

	out := make([]types.ResultEntry, 0, len(raw))
	for _, r := range raw {
		entry, ok := toResultEntry(r, req.Type, g.def.ID)
		if !ok {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// ensureLoggedIn authenticates once per driver lifetime for indexers whose
// definition carries a login block, reusing the resulting cookie-bearing
// client for every subsequent search. A cleared session (e.g. after the site
// invalidates cookies) would require a new Generic instance; the dispatcher
// rebuilds generic drivers per definition each call, so this is acceptable.
func (g *Generic) ensureLoggedIn(ctx context.Context) (*cardigann.LoginHandler, error) {
	g.loginMu.Lock()
	defer g.loginMu.Unlock()

	if g.loggedIn {
		return g.loginHandle, nil
	}

	handler, err := cardigann.NewLoginHandler(g.def.GetBaseURL(), &g.logger)
	if err != nil {
		return nil, indexer.NewAuthError(g.def.ID, g.def.Name, err)
	}
	if err := handler.Authenticate(ctx, g.def.Login, nil, g.def.Search.Headers); err != nil {
		return nil, indexer.NewAuthError(g.def.ID, g.def.Name, err)
	}

	g.loginHandle = handler
	g.loggedIn = true
	return handler, nil
}

func searchType(ct types.ContentType) string {
	switch ct {
	case types.ContentSeries, types.ContentAnime:
		return "tvsearch"
	default:
		return "movie"
	}
}

// toResultEntry converts a raw Cardigann search result into the closed
// Result Entry record, deriving an infoHash when the definition exposed a
// magnet link instead of a literal hash.
func toResultEntry(r cardigann.SearchResult, contentType types.ContentType, provider string) (types.ResultEntry, bool) {
	hash := r.InfoHash
	if hash == "" && r.MagnetURL != "" {
		hash = infoHashFromMagnet(r.MagnetURL)
	}
	if hash == "" {
		return types.ResultEntry{}, false
	}
	hash = strings.ToLower(hash)

	return types.ResultEntry{
		InfoHash:   hash,
		Title:      r.Title,
		Size:       r.Size,
		Seeders:    r.Seeders,
		UploadedAt: r.PublishDate,
		Provider:   provider,
		MagnetURI:  r.MagnetURL,
		Type:       contentType,
		ImdbID:     r.IMDBID,
	}, true
}

// infoHashFromMagnet extracts the 40-hex btih hash from a magnet URI, or
// derives a stable fallback from the URI itself when no btih is present.
func infoHashFromMagnet(magnet string) string {
	idx := strings.Index(strings.ToLower(magnet), "btih:")
	if idx >= 0 {
		rest := magnet[idx+5:]
		end := strings.IndexAny(rest, "&")
		if end < 0 {
			end = len(rest)
		}
		candidate := rest[:end]
		if len(candidate) == 40 {
			return candidate
		}
	}
	sum := sha1.Sum([]byte(magnet))
	return hex.EncodeToString(sum[:])
}
