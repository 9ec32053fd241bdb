// Package registry implements the Indexer Definition Store and the Health
// Probe Loop (§4.A, §4.B): the authoritative list of known indexers, their
// parsed capabilities, and the periodic task that keeps each one's health row
// up to date.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/indexer/cardigann"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

// Store is the pure Indexer Definition Store of §4.A: parsing and lookup
// only, backed by the Cardigann definition cache and remote repository.
type Store struct {
	cache      *cardigann.Cache
	repository *cardigann.Repository
	logger     zerolog.Logger
}

// NewStore builds a Store over an already-initialized Cardigann cache and repository.
func NewStore(cache *cardigann.Cache, repo *cardigann.Repository, logger zerolog.Logger) *Store {
	return &Store{cache: cache, repository: repo, logger: logger.With().Str("component", "registry").Logger()}
}

// GetDefinition returns the parsed definition for id.
func (s *Store) GetDefinition(id string) (*types.IndexerDefinition, error) {
	def, err := s.cache.Get(id)
	if err != nil {
		return nil, fmt.Errorf("registry: get definition %s: %w", id, err)
	}
	return toIndexerDefinition(def), nil
}

// RawDefinition returns the underlying Cardigann definition, for callers that
// need template/selector access beyond the trimmed IndexerDefinition shape.
func (s *Store) RawDefinition(id string) (*cardigann.Definition, error) {
	return s.cache.Get(id)
}

// GetDomains returns the candidate mirror URLs for id, in priority order.
func (s *Store) GetDomains(id string) ([]string, error) {
	def, err := s.cache.Get(id)
	if err != nil {
		return nil, err
	}
	return def.Links, nil
}

// ListAll returns every known definition ID, sorted alphabetically.
func (s *Store) ListAll() ([]string, error) {
	metas, err := s.cache.List()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Sync refreshes the definition cache from the remote repository, pacing
// requests at least RequestDelay apart (§6.1). Partial per-id failures are
// logged and skipped rather than aborting the whole sync.
func (s *Store) Sync(ctx context.Context, requestDelay time.Duration) error {
	list, err := s.repository.FetchDefinitionList(ctx)
	if err != nil {
		return fmt.Errorf("registry: sync: fetch list: %w", err)
	}

	ticker := time.NewTicker(requestDelay)
	defer ticker.Stop()

	synced := 0
	for _, meta := range list {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		raw, err := s.repository.FetchDefinitionRaw(ctx, meta.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", meta.ID).Msg("failed to fetch definition, skipping")
			continue
		}
		if err := s.cache.Store(meta.ID, raw); err != nil {
			s.logger.Warn().Err(err).Str("id", meta.ID).Msg("failed to cache definition, skipping")
			continue
		}
		synced++
	}

	s.logger.Info().Int("synced", synced).Int("total", len(list)).Msg("definition sync complete")
	return nil
}

// UploadCustom stores a manually supplied definition, taking precedence over
// any standard definition with the same ID (the cache's custom-dir rule).
func (s *Store) UploadCustom(id string, raw []byte) error {
	return s.cache.StoreCustom(id, raw)
}

// toIndexerDefinition maps a raw Cardigann definition onto the app's trimmed model.
func toIndexerDefinition(def *cardigann.Definition) *types.IndexerDefinition {
	paths := make([]types.SearchPathConfig, 0, len(def.Search.Paths))
	for _, p := range def.Search.Paths {
		method := p.Method
		if method == "" {
			method = "GET"
		}
		kind := types.ResponseHTML
		if p.Response != nil {
			switch strings.ToLower(p.Response.Type) {
			case "json":
				kind = types.ResponseJSON
			case "xml", "rss":
				kind = types.ResponseRSS
			}
		}
		paths = append(paths, types.SearchPathConfig{Path: p.Path, Method: method, Response: kind})
	}

	visibility := types.VisibilityPublic
	if def.GetPrivacy() != "public" {
		visibility = types.VisibilityPrivate
	}

	return &types.IndexerDefinition{
		ID:           def.ID,
		DisplayName:  def.Name,
		Language:     def.Language,
		Visibility:   visibility,
		Links:        def.Links,
		SearchPaths:  paths,
		ContentTypes: inferContentTypes(def),
	}
}

// inferContentTypes derives the spec's movie/series/anime content-type set
// from a Cardigann definition's category mappings. An indexer with no
// recognizable categories gets an empty set, which by design makes it never
// selectable (§4.F step 3) rather than falling back to a guess. A definition
// that GetProtocol identifies as non-torrent (usenet) is out of scope for
// this backend entirely and is forced to an empty set the same way.
func inferContentTypes(def *cardigann.Definition) []types.ContentType {
	if def.GetProtocol() != "torrent" {
		return nil
	}
	seen := map[types.ContentType]bool{}
	for _, cm := range def.Caps.CategoryMappings {
		cat := strings.ToLower(cm.Cat)
		switch {
		case strings.Contains(cat, "anime"):
			seen[types.ContentAnime] = true
		case strings.Contains(cat, "tv"):
			seen[types.ContentSeries] = true
		case strings.Contains(cat, "movie"):
			seen[types.ContentMovie] = true
		}
	}
	out := make([]types.ContentType, 0, len(seen))
	for _, ct := range []types.ContentType{types.ContentMovie, types.ContentSeries, types.ContentAnime} {
		if seen[ct] {
			out = append(out, ct)
		}
	}
	return out
}
