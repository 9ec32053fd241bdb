// Package types holds the data model shared across the indexer subsystems:
// definition store, health registry, session cache and search dispatcher.
package types

import "time"

// ContentType is a kind of content an indexer definition can serve.
type ContentType string

const (
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
	ContentAnime  ContentType = "anime"
)

// Visibility is an indexer definition's access level.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ResponseKind is the wire format a search path returns.
type ResponseKind string

const (
	ResponseHTML ResponseKind = "html"
	ResponseJSON ResponseKind = "json"
	ResponseRSS  ResponseKind = "rss"
)

// SolverRequirement records whether an indexer has been observed to need the
// challenge solver, separate from whether a solver is currently configured.
type SolverRequirement string

const (
	SolverUnknown SolverRequirement = "unknown"
	SolverNo      SolverRequirement = "no"
	SolverYes     SolverRequirement = "yes"
)

// SearchPathConfig describes one search endpoint of an indexer definition.
type SearchPathConfig struct {
	Path     string       `json:"path"`
	Method   string       `json:"method"`
	Response ResponseKind `json:"responseKind"`
}

// IndexerDefinition is the parsed, immutable shape of one indexer definition.
type IndexerDefinition struct {
	ID           string             `json:"id"`
	DisplayName  string             `json:"displayName"`
	Language     string             `json:"language"`
	Visibility   Visibility         `json:"visibility"`
	Links        []string           `json:"links"`
	SearchPaths  []SearchPathConfig `json:"searchPaths"`
	ContentTypes []ContentType      `json:"contentTypes"`
}

// SupportsContentType reports whether the definition can serve the given type.
// An indexer with an empty ContentTypes set is never compatible with any type,
// by design (§4.F step 3): there is no heuristic fallback.
func (d *IndexerDefinition) SupportsContentType(t ContentType) bool {
	for _, c := range d.ContentTypes {
		if c == t {
			return true
		}
	}
	return false
}

// IndexerHealthRow is the persisted operational state of one indexer.
type IndexerHealthRow struct {
	ID                  string            `json:"id"`
	LastCheckedAt       time.Time         `json:"lastCheckedAt"`
	LastSucceededAt     time.Time         `json:"lastSucceededAt"`
	TotalChecks         int64             `json:"totalChecks"`
	TotalSuccesses      int64             `json:"totalSuccesses"`
	TotalFailures       int64             `json:"totalFailures"`
	ConsecutiveFailures int               `json:"consecutiveFailures"`
	DisabledUntil       *time.Time        `json:"disabledUntil,omitempty"`
	Enabled             bool              `json:"enabled"`
	WorkingDomain       string            `json:"workingDomain,omitempty"`
	LastError           string            `json:"lastError,omitempty"`
	RequiresSolver       SolverRequirement `json:"requiresSolver"`
	AvgResponseMs       float64           `json:"avgResponseMs"`
	IsPublic            bool              `json:"isPublic"`
}

// SuccessRate returns the rolling success rate as a percentage in [0,100].
// Returns 0 when no checks have been recorded, rather than dividing by zero.
func (r *IndexerHealthRow) SuccessRate() float64 {
	if r.TotalChecks == 0 {
		return 0
	}
	return 100 * float64(r.TotalSuccesses) / float64(r.TotalChecks)
}

// Priority computes the dispatch priority in [0,100] per the scoring formula:
// speed rewards fast, successful responses; base blends success rate and
// speed with a flat success bonus; a known-no-solver indexer gets a bonus
// since it can run in the fast tier.
func (r *IndexerHealthRow) Priority(lastCheckSucceeded bool) int {
	speed := 0.0
	if lastCheckSucceeded {
		speed = 100 - r.AvgResponseMs/100
		if speed < 0 {
			speed = 0
		}
	}

	successBonus := 0.0
	if lastCheckSucceeded {
		successBonus = 20
	}

	base := 0.4*r.SuccessRate() + 0.4*speed + successBonus

	if r.RequiresSolver == SolverNo {
		base += 20
	}

	if base > 100 {
		base = 100
	}
	if base < 0 {
		base = 0
	}
	return int(base)
}

// SessionEntry caches a solved or otherwise acquired browsing session for a host.
type SessionEntry struct {
	Host      string    `json:"host"`
	Cookies   []string  `json:"cookies"`
	UserAgent string    `json:"userAgent"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session entry is no longer usable at the given time.
func (s *SessionEntry) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// ResultEntry is a single announced BitTorrent item returned by the dispatcher.
type ResultEntry struct {
	InfoHash   string      `json:"infoHash"`
	Title      string      `json:"title"`
	Size       int64       `json:"size"`
	Seeders    int         `json:"seeders"`
	UploadedAt time.Time   `json:"uploadedAt"`
	Provider   string      `json:"provider"`
	MagnetURI  string      `json:"magnetUri"`
	Resolution string      `json:"resolution,omitempty"`
	Type       ContentType `json:"type"`
	ImdbID     string      `json:"imdbId,omitempty"`
	KitsuID    string      `json:"kitsuId,omitempty"`
	Season     int         `json:"season,omitempty"`
	Episode    int         `json:"episode,omitempty"`
}

// SearchRequest is the dispatcher's public search contract (§4.F).
type SearchRequest struct {
	ID         string
	Type       ContentType
	Season     int
	Episode    int
	Title      string
	Providers  []string
	DeadlineMs int
}

// ManualMode reports whether the request names explicit providers instead of
// asking the dispatcher to pick indexers itself. An empty list, or the single
// sentinel "smart", both mean smart mode.
func (r *SearchRequest) ManualMode() bool {
	if len(r.Providers) == 0 {
		return false
	}
	if len(r.Providers) == 1 && r.Providers[0] == "smart" {
		return false
	}
	return true
}
