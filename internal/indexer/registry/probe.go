package registry

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/coreagg/indexercore/internal/config"
	"github.com/coreagg/indexercore/internal/indexer/session"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

// probeOutcome is the typed result gobreaker wraps per indexer attempt.
type probeOutcome struct {
	workingDomain string
	responseMs    float64
	requiresSolver types.SolverRequirement
}

// Prober runs the periodic Health Probe Loop described in §4.B.
type Prober struct {
	definitions *Store
	health      HealthStore
	fetcher     *session.Fetcher
	cfg         config.StatusConfig
	logger      zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[probeOutcome]
}

// NewProber builds a Prober over the given definition store, health store and
// protected fetcher.
func NewProber(defs *Store, health HealthStore, fetcher *session.Fetcher, cfg config.StatusConfig, logger zerolog.Logger) *Prober {
	return &Prober{
		definitions: defs,
		health:      health,
		fetcher:     fetcher,
		cfg:         cfg,
		logger:      logger.With().Str("component", "health-probe").Logger(),
		breakers:    make(map[string]*gobreaker.CircuitBreaker[probeOutcome]),
	}
}

func (p *Prober) breakerFor(id string) *gobreaker.CircuitBreaker[probeOutcome] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[id]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[probeOutcome](gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     p.cfg.Cooldown(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= p.cfg.CircuitThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info().Str("indexer", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	p.breakers[id] = cb
	return cb
}

// RunOnce executes one invocation of the Health Probe Loop: it loads indexer
// IDs ordered by lastCheckedAt ascending (never-checked first), takes a
// batch, and probes them sequentially with a politeness delay between each,
// bounded by the configured wall-clock budget.
func (p *Prober) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeBudget())
	defer cancel()

	ids, err := p.definitions.ListAll()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to list definitions, skipping this probe cycle")
		return nil
	}

	rows := make([]*types.IndexerHealthRow, 0, len(ids))
	for _, id := range ids {
		row, err := p.health.Get(ctx, id)
		if err != nil {
			p.logger.Warn().Err(err).Str("indexer", id).Msg("health store unavailable for read, using zero row")
		}
		if row == nil {
			row = &types.IndexerHealthRow{ID: id, RequiresSolver: types.SolverUnknown}
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].LastCheckedAt.Before(rows[j].LastCheckedAt)
	})

	batch := rows
	if len(batch) > p.cfg.ProbeBatchSize {
		batch = batch[:p.cfg.ProbeBatchSize]
	}

	for i, row := range batch {
		if ctx.Err() != nil {
			return nil
		}
		p.probeIndexer(ctx, row)
		if i < len(batch)-1 {
			select {
			case <-time.After(p.cfg.ProbeInterval()):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// probeIndexer runs a single indexer's check and persists the updated row
// immediately, rather than batching the write for later. The entire
// multi-domain mirror walk is gated behind one gobreaker.Execute call, so
// the breaker's ConsecutiveFailures counter advances exactly once per probe
// cycle — the same rate as the health row's own ConsecutiveFailures field
// (recordFailure, below) — rather than once per mirror attempt. Without
// that alignment the breaker could trip within a single cycle (after a few
// failed mirrors) well before the row-level circuit breaker's 5-consecutive-
// failed-checks threshold (§3/§8) is ever reached.
func (p *Prober) probeIndexer(ctx context.Context, row *types.IndexerHealthRow) {
	def, err := p.definitions.GetDefinition(row.ID)
	if err != nil || len(def.SearchPaths) == 0 {
		p.recordFailure(ctx, row, "no usable definition or search path")
		return
	}

	path := def.SearchPaths[0]
	domains := def.Links
	if len(domains) > p.cfg.ProbeMaxDomains {
		domains = domains[:p.cfg.ProbeMaxDomains]
	}

	cb := p.breakerFor(row.ID)
	start := time.Now()

	outcome, err := cb.Execute(func() (probeOutcome, error) {
		return p.probeDomains(ctx, path, domains, start)
	})
	if err != nil {
		p.recordFailure(ctx, row, err.Error())
		return
	}
	p.recordSuccess(ctx, row, outcome)
}

// probeDomains walks each mirror domain in priority order, returning the
// first successful outcome, or the last error once every domain has failed.
func (p *Prober) probeDomains(ctx context.Context, path types.SearchPathConfig, domains []string, start time.Time) (probeOutcome, error) {
	var lastErr error
	solverAttempted := false

	for _, domain := range domains {
		target, err := joinURL(domain, path.Path)
		if err != nil {
			lastErr = err
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout())
		resp, ferr := p.fetcher.Fetch(probeCtx, target, session.Options{UseSolver: !solverAttempted})
		solverAttempted = true
		cancel()
		if ferr != nil {
			lastErr = ferr
			continue
		}

		req := types.SolverNo
		if !strings.Contains(resp.FinalURL, domain) {
			req = types.SolverUnknown
		}
		return probeOutcome{
			workingDomain:  domain,
			responseMs:     float64(time.Since(start).Milliseconds()),
			requiresSolver: req,
		}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no domains configured for probe")
	}
	return probeOutcome{}, lastErr
}

func (p *Prober) recordSuccess(ctx context.Context, row *types.IndexerHealthRow, outcome probeOutcome) {
	now := time.Now()
	row.LastCheckedAt = now
	row.LastSucceededAt = now
	row.TotalChecks++
	row.TotalSuccesses++
	row.ConsecutiveFailures = 0
	row.DisabledUntil = nil
	row.Enabled = true
	row.WorkingDomain = outcome.workingDomain
	row.AvgResponseMs = (row.AvgResponseMs + outcome.responseMs) / 2
	row.LastError = ""
	if row.RequiresSolver == types.SolverUnknown {
		row.RequiresSolver = outcome.requiresSolver
	}

	if err := p.health.Upsert(ctx, row); err != nil {
		p.logger.Warn().Err(err).Str("indexer", row.ID).Msg("failed to persist health row after success")
	}
}

func (p *Prober) recordFailure(ctx context.Context, row *types.IndexerHealthRow, message string) {
	now := time.Now()
	row.LastCheckedAt = now
	row.TotalChecks++
	row.TotalFailures++
	row.ConsecutiveFailures++
	row.LastError = message

	if row.ConsecutiveFailures >= p.cfg.CircuitThreshold {
		disabledUntil := now.Add(p.cfg.Cooldown())
		row.DisabledUntil = &disabledUntil
		row.Enabled = false
	}

	if err := p.health.Upsert(ctx, row); err != nil {
		p.logger.Warn().Err(err).Str("indexer", row.ID).Msg("failed to persist health row after failure")
	}
}

func joinURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}
