// Package search implements the Aggregated Search Engine's dispatcher
// (§4.F): it resolves which indexer drivers to query for a request, runs
// them concurrently under a deadline, and returns a deduplicated,
// relevance-filtered list of results.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/config"
	"github.com/coreagg/indexercore/internal/indexer/drivers"
	"github.com/coreagg/indexercore/internal/indexer/registry"
	"github.com/coreagg/indexercore/internal/indexer/relevance"
	"github.com/coreagg/indexercore/internal/indexer/session"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

// TitleResolver resolves an IMDB/Kitsu id to a human-readable title, used
// when the caller doesn't supply one (§6.4).
type TitleResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Dispatcher is the Search Dispatcher of §4.F.
type Dispatcher struct {
	defs     *registry.Store
	health   registry.HealthStore
	fetcher  *session.Fetcher
	resolver TitleResolver
	cfg      config.SearchConfig
	logger   zerolog.Logger

	// handCoded holds the small fixed set of specialized drivers, keyed by
	// indexer definition ID. Indexers without an entry here fall back to
	// the generic template-driven driver.
	handCoded map[string]drivers.Driver
}

// New builds a Dispatcher.
func New(defs *registry.Store, health registry.HealthStore, fetcher *session.Fetcher, resolver TitleResolver, cfg config.SearchConfig, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		defs:      defs,
		health:    health,
		fetcher:   fetcher,
		resolver:  resolver,
		cfg:       cfg,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		handCoded: make(map[string]drivers.Driver),
	}
}

// RegisterHandCoded wires a specialized driver for one indexer definition ID,
// overriding the generic template-driven driver for that indexer.
func (d *Dispatcher) RegisterHandCoded(definitionID string, driver drivers.Driver) {
	d.handCoded[definitionID] = driver
}

// Search implements the §4.F procedure.
func (d *Dispatcher) Search(ctx context.Context, req types.SearchRequest) ([]types.ResultEntry, error) {
	deadline := time.Duration(req.DeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = time.Duration(d.cfg.InteractiveMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ungated := false
	if req.Title == "" {
		title, err := d.resolveTitle(ctx, req.ID)
		if err != nil {
			d.logger.Debug().Err(err).Str("id", req.ID).Msg("title resolution failed, proceeding ungated")
			ungated = true
		} else {
			req.Title = title
		}
	}

	var targets []driverTarget
	if req.ManualMode() {
		targets = d.resolveManual(req.Providers)
	} else {
		targets = d.resolveSmart(ctx, req)
	}

	results := d.dispatch(ctx, req, targets)

	if !ungated {
		results = filterRelevant(results, req.Title)
	}

	return dedupe(results), nil
}

func (d *Dispatcher) resolveTitle(ctx context.Context, id string) (string, error) {
	if d.resolver == nil || id == "" {
		return "", errNoResolver
	}
	return d.resolver.Resolve(ctx, id)
}

var errNoResolver = &resolverError{"no title resolver configured"}

type resolverError struct{ msg string }

func (e *resolverError) Error() string { return e.msg }

// driverTarget pairs a driver with metadata used only for tier bookkeeping.
type driverTarget struct {
	id       string
	driver   drivers.Driver
	fastTier bool
}

// resolveManual builds driver targets for an explicit provider list: a
// hand-coded driver if one exists for that ID, otherwise the generic driver.
func (d *Dispatcher) resolveManual(providerIDs []string) []driverTarget {
	targets := make([]driverTarget, 0, len(providerIDs))
	for _, id := range providerIDs {
		if t, ok := d.buildTarget(id, true); ok {
			targets = append(targets, t)
		}
	}
	return targets
}

// resolveSmart implements the fast/slow tiering of §4.F step 3.
func (d *Dispatcher) resolveSmart(ctx context.Context, req types.SearchRequest) []driverTarget {
	rows, err := d.health.List(ctx, registry.HealthFilter{
		MinSuccessRate:      float64(d.cfg.MinSuccessRate),
		ExcludeDisabled:     true,
		OrderByPriorityDesc: true,
		Limit:               d.cfg.TopN,
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("health store unavailable, smart dispatch has no candidates this call")
		return nil
	}

	var fast, slow []driverTarget
	for _, row := range rows {
		def, err := d.defs.GetDefinition(row.ID)
		if err != nil || !def.SupportsContentType(req.Type) {
			continue
		}

		t, ok := d.buildTarget(row.ID, row.RequiresSolver == types.SolverNo)
		if !ok {
			continue
		}

		if row.RequiresSolver == types.SolverNo {
			if len(fast) < d.cfg.FastTierSize {
				fast = append(fast, t)
			}
		} else {
			if len(slow) < d.cfg.SlowTierSize {
				slow = append(slow, t)
			}
		}
	}

	if len(fast) >= d.cfg.SkipSlowAt {
		return fast
	}
	return append(fast, slow...)
}

func (d *Dispatcher) buildTarget(id string, fastTier bool) (driverTarget, bool) {
	if driver, ok := d.handCoded[id]; ok {
		return driverTarget{id: id, driver: driver, fastTier: fastTier}, true
	}

	rawDef, err := d.defs.RawDefinition(id)
	if err != nil {
		return driverTarget{}, false
	}

	generic := drivers.NewGeneric(rawDef, d.fetcher, driverTimeout(fastTier), d.logger)
	return driverTarget{id: id, driver: generic, fastTier: fastTier}, true
}

func driverTimeout(fastTier bool) time.Duration {
	if fastTier {
		return 5 * time.Second
	}
	return 10 * time.Second
}

// dispatch runs every target's driver concurrently, collecting whatever
// completes before ctx's deadline. A driver that doesn't finish in time is
// simply not counted; the dispatcher never blocks past the deadline plus a
// small epsilon for goroutine teardown.
func (d *Dispatcher) dispatch(ctx context.Context, req types.SearchRequest, targets []driverTarget) []types.ResultEntry {
	if len(targets) == 0 {
		return nil
	}

	resultsCh := make(chan []types.ResultEntry, len(targets))
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		go func(t driverTarget) {
			defer wg.Done()
			resultsCh <- t.driver.Search(ctx, req)
		}(target)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	// A driver that missed the deadline may still be sending; resultsCh is
	// buffered to len(targets), so draining only what's already queued (and
	// never closing it) avoids a send-on-closed-channel panic from that
	// straggler.
	var all []types.ResultEntry
	for {
		select {
		case r := <-resultsCh:
			all = append(all, r...)
		default:
			return all
		}
	}
}

func filterRelevant(results []types.ResultEntry, title string) []types.ResultEntry {
	out := make([]types.ResultEntry, 0, len(results))
	for _, r := range results {
		if relevance.Matches(title, r.Title, r.ImdbID) {
			out = append(out, r)
		}
	}
	return out
}

// dedupe drops invalid info hashes and duplicate hashes, keeping the first
// occurrence of each, per §4.F step 7 and the §8 invariants against invalid
// or duplicate output.
func dedupe(results []types.ResultEntry) []types.ResultEntry {
	seen := make(map[string]bool, len(results))
	out := make([]types.ResultEntry, 0, len(results))
	for _, r := range results {
		hash := strings.ToLower(r.InfoHash)
		if !isValidInfoHash(hash) {
			continue
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true
		r.InfoHash = hash
		out = append(out, r)
	}
	return out
}

func isValidInfoHash(hash string) bool {
	if len(hash) != 40 {
		return false
	}
	for _, c := range hash {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHex {
			return false
		}
	}
	return true
}
