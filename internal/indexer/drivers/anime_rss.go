package drivers

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/indexer/session"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

// AnimeRSS is a hand-coded driver for anime-release RSS feeds whose item
// format (title, enclosure, category) is simple enough to not need the full
// template/selector machinery, and whose query parameter is a single free-text
// search term appended to the feed URL.
type AnimeRSS struct {
	feedURL  string
	provider string
	fetcher  *session.Fetcher
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewAnimeRSS builds a hand-coded anime-RSS driver against one feed.
func NewAnimeRSS(feedURL, provider string, fetcher *session.Fetcher, timeout time.Duration, logger zerolog.Logger) *AnimeRSS {
	return &AnimeRSS{
		feedURL:  feedURL,
		provider: provider,
		fetcher:  fetcher,
		timeout:  timeout,
		logger:   logger.With().Str("component", "anime-rss-driver").Str("provider", provider).Logger(),
	}
}

type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string       `xml:"title"`
	Enclosure rssEnclosure `xml:"enclosure"`
	PubDate   string       `xml:"pubDate"`
	InfoHash  string       `xml:"infoHash"`
}

type rssEnclosure struct {
	URL string `xml:"url,attr"`
}

// Search implements Driver. It never returns an error: any failure, parse
// problem, or challenge block yields an empty slice.
func (a *AnimeRSS) Search(ctx context.Context, req types.SearchRequest) []types.ResultEntry {
	if req.Type != types.ContentAnime {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	target := a.feedURL
	if req.Title != "" {
		target += "?q=" + strings.ReplaceAll(req.Title, " ", "+")
	}

	resp, err := a.fetcher.Fetch(ctx, target, session.Options{Method: http.MethodGet, UseSolver: true})
	if err != nil {
		a.logger.Debug().Err(err).Msg("anime rss fetch failed")
		return nil
	}

	var feed rssFeed
	if err := xml.NewDecoder(strings.NewReader(string(resp.Body))).Decode(&feed); err != nil {
		a.logger.Debug().Err(err).Msg("anime rss parse failed")
		return nil
	}

	out := make([]types.ResultEntry, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		hash := strings.ToLower(item.InfoHash)
		if hash == "" && item.Enclosure.URL != "" {
			hash = infoHashFromMagnet(item.Enclosure.URL)
		}
		if len(hash) != 40 {
			continue
		}

		published, _ := time.Parse(time.RFC1123Z, item.PubDate)
		out = append(out, types.ResultEntry{
			InfoHash:   hash,
			Title:      item.Title,
			UploadedAt: published,
			Provider:   a.provider,
			MagnetURI:  item.Enclosure.URL,
			Type:       types.ContentAnime,
		})
	}
	return out
}
