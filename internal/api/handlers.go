package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/coreagg/indexercore/internal/indexer/types"
)

// getHealthz is a liveness probe; it reports ok unconditionally once the
// process has reached routable state.
func (s *Server) getHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// search implements the aggregated search operation (§4.F) at
// GET /stream/:type/:id[:season:episode]?providers=a,b&deadline_ms=4000.
func (s *Server) search(c echo.Context) error {
	contentType := types.ContentType(c.Param("type"))
	id := c.Param("id")

	season, episode := 0, 0
	if parts := strings.Split(id, ":"); len(parts) == 3 {
		id = parts[0]
		season, _ = strconv.Atoi(parts[1])
		episode, _ = strconv.Atoi(parts[2])
	}

	req := types.SearchRequest{
		ID:     id,
		Type:   contentType,
		Season: season,
		Episode: episode,
	}
	if providers := c.QueryParam("providers"); providers != "" {
		req.Providers = strings.Split(providers, ",")
	}
	if deadline := c.QueryParam("deadline_ms"); deadline != "" {
		if ms, err := strconv.Atoi(deadline); err == nil {
			req.DeadlineMs = ms
		}
	}

	if s.hub != nil {
		s.hub.Broadcast("search:started", echo.Map{"id": id, "type": string(contentType)})
	}

	results, err := s.dispatcher.Search(c.Request().Context(), req)
	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("search failed")
		if s.hub != nil {
			s.hub.Broadcast("search:failed", echo.Map{"id": id, "error": err.Error()})
		}
		return echo.NewHTTPError(http.StatusBadGateway, "search failed")
	}

	if s.hub != nil {
		s.hub.Broadcast("search:completed", echo.Map{"id": id, "results": len(results)})
	}

	return c.JSON(http.StatusOK, echo.Map{"streams": results})
}

// indexerStatusView is the JSON shape returned for a single indexer's
// operational state, combining the persisted health row with its current
// dispatch priority.
type indexerStatusView struct {
	*types.IndexerHealthRow
	Priority int `json:"priority"`
}

// listIndexers returns every tracked indexer's health row and priority.
func (s *Server) listIndexers(c echo.Context) error {
	rows, err := s.health.All(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list indexers")
	}

	out := make([]indexerStatusView, 0, len(rows))
	for _, row := range rows {
		out = append(out, indexerStatusView{
			IndexerHealthRow: row,
			Priority:         row.Priority(row.ConsecutiveFailures == 0),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// getIndexerStatus returns a single indexer's health row and priority.
func (s *Server) getIndexerStatus(c echo.Context) error {
	id := c.Param("id")
	row, err := s.health.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load indexer status")
	}
	if row == nil {
		return echo.NewHTTPError(http.StatusNotFound, "indexer not found")
	}
	return c.JSON(http.StatusOK, indexerStatusView{
		IndexerHealthRow: row,
		Priority:         row.Priority(row.ConsecutiveFailures == 0),
	})
}

// getRateLimitStatus returns the observational query/grab quota state for an
// indexer (§6); it never blocks a request, only reports state.
func (s *Server) getRateLimitStatus(c echo.Context) error {
	id := c.Param("id")
	return c.JSON(http.StatusOK, s.rateLimiter.GetLimits(id))
}
