// Package session implements the session cache and protected fetcher described
// in §4.D: a per-host cookie/user-agent cache backed by a protected HTTP
// fetcher that detects anti-bot challenges and, when configured, invokes the
// external solver once per call site before retrying.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/indexer/challenge"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

func randomUserAgent() string {
	return desktopUserAgents[rand.Intn(len(desktopUserAgents))]
}

// Solver is the subset of solver.Client the fetcher depends on.
type Solver interface {
	Enabled() bool
	Solve(ctx context.Context, url string, maxTimeoutMs int) (*SolveResult, error)
}

// SolveResult mirrors solver.Solution to avoid an import cycle between
// session and solver; the wiring layer adapts one to the other.
type SolveResult struct {
	Cookies   []string
	UserAgent string
	FinalURL  string
	Status    int
	// CfClearanceExpiry is the real cf_clearance cookie expiry the solver
	// observed, or the zero Time if it couldn't be determined. Per §4.D
	// item 3, the cached session TTL is min(CfClearanceExpiry - 1m,
	// the store's default TTL).
	CfClearanceExpiry time.Time
}

// Persister durably backs the session cache (cf_sessions table), so a
// solved session survives a process restart instead of forcing a fresh
// solve. Optional: a Store with no persister configured is purely in-memory.
type Persister interface {
	PutSession(ctx context.Context, entry *types.SessionEntry) error
	GetSession(ctx context.Context, host string) (*types.SessionEntry, error)
}

// Store is a thread-safe, in-memory, per-host session cache. Reads share an
// RWMutex and do not block each other; solver invocations for a given host
// are serialized via the per-host lock returned by lockFor.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*types.SessionEntry
	locks     map[string]*sync.Mutex
	locksMu   sync.Mutex
	minTTL    time.Duration
	maxTTL    time.Duration
	persister Persister
	logger    zerolog.Logger
}

// NewStore creates an empty session store.
func NewStore(defaultTTL, minTTL time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*types.SessionEntry),
		locks:    make(map[string]*sync.Mutex),
		minTTL:   minTTL,
		maxTTL:   defaultTTL,
		logger:   logger.With().Str("component", "session-store").Logger(),
	}
}

// SetPersister wires a durable backing store. Must be called before Get/Put
// are used concurrently from other goroutines.
func (s *Store) SetPersister(p Persister) {
	s.persister = p
}

// Get returns the cached session for host, or nil if absent or expired. On an
// in-memory miss it consults the persister (if configured) so a session
// solved before a restart is still usable.
func (s *Store) Get(ctx context.Context, host string) *types.SessionEntry {
	s.mu.RLock()
	entry, ok := s.sessions[host]
	s.mu.RUnlock()
	if ok {
		if entry.Expired(time.Now()) {
			return nil
		}
		return entry
	}

	if s.persister == nil {
		return nil
	}
	persisted, err := s.persister.GetSession(ctx, host)
	if err != nil || persisted == nil || persisted.Expired(time.Now()) {
		return nil
	}

	s.mu.Lock()
	s.sessions[host] = persisted
	s.mu.Unlock()
	return persisted
}

// Put stores a session for host, clamping its expiry to at most maxTTL from
// now and rejecting entries whose clearance expires in under minTTL (§8
// boundary behavior: cf_clearance expiry < now+60s => not cached).
func (s *Store) Put(ctx context.Context, host string, cookies []string, userAgent string, expiresAt time.Time) {
	now := time.Now()
	if expiresAt.Sub(now) < s.minTTL {
		return
	}
	if cap := now.Add(s.maxTTL); expiresAt.After(cap) {
		expiresAt = cap
	}

	entry := &types.SessionEntry{
		Host:      host,
		Cookies:   cookies,
		UserAgent: userAgent,
		ExpiresAt: expiresAt,
	}

	s.mu.Lock()
	s.sessions[host] = entry
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.PutSession(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Str("host", host).Msg("failed to persist session")
		}
	}
}

// Clear removes any cached session for host.
func (s *Store) Clear(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, host)
}

// lockFor returns the per-host mutex, creating it if necessary, so that
// concurrent callers for the same host serialize on solver invocation while
// callers for distinct hosts never block each other.
func (s *Store) lockFor(host string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[host]
	if !ok {
		l = &sync.Mutex{}
		s.locks[host] = l
	}
	return l
}

// Response is the result of a protected fetch.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	FinalURL   string
}

// Options configures a single Fetch call.
type Options struct {
	Method  string
	Headers http.Header
	Body    io.Reader
	// UseSolver allows this call site to invoke the solver on a detected
	// challenge. Probe callers and driver callers both set this; it exists
	// so a caller can opt out when a solver round trip would blow its budget.
	UseSolver bool
}

// Fetcher issues HTTP requests with the session cache and solver bypass wired in.
type Fetcher struct {
	store      *Store
	httpClient *http.Client
	solver     Solver
	logger     zerolog.Logger
	timeout    time.Duration
}

// NewFetcher creates a Fetcher with the given default per-request timeout.
func NewFetcher(store *Store, solver Solver, timeout time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		store:   store,
		solver:  solver,
		timeout: timeout,
		logger:  logger.With().Str("component", "protected-fetcher").Logger(),
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch performs a single request to targetURL, attaching any cached session
// for its host or a rotating desktop user-agent otherwise. On detecting an
// anti-bot challenge it may invoke the solver once (if enabled and opted in),
// cache the result, and retry exactly once.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, opts Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	host, err := hostOf(targetURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.doOnce(ctx, method, targetURL, host, opts)
	if resp == nil {
		return nil, err
	}

	// §4.D: challenge detection runs on the body regardless of status, so a
	// 5xx doOnce error (server error, no challenge markers) still needs its
	// response inspected before being handed back to the caller.
	tag := challenge.Detect(resp.StatusCode, resp.Headers, resp.Body)
	if !challenge.IsChallenge(tag) {
		return resp, err
	}

	if !opts.UseSolver || f.solver == nil || !f.solver.Enabled() || !challenge.RequiresSolver(tag) {
		return resp, fmt.Errorf("protected fetch blocked: %s", tag)
	}

	lock := f.store.lockFor(host)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have solved this host while we waited for the lock.
	if cached := f.store.Get(ctx, host); cached != nil {
		return f.doOnce(ctx, method, targetURL, host, opts)
	}

	sol, err := f.solver.Solve(ctx, targetURL, 60000)
	if err != nil {
		return resp, fmt.Errorf("protected fetch blocked (%s), solver failed: %w", tag, err)
	}

	// Per §4.D item 3: TTL = min(cf_clearance expiry - 1m, default 30m). When
	// the solver didn't return a parseable cf_clearance expiry, fall back to
	// a far-future value; Store.Put's own maxTTL clamp reduces that to the
	// configured default, which is exactly the "default 30 min" half of the
	// formula.
	expiresAt := time.Now().Add(f.store.maxTTL)
	if !sol.CfClearanceExpiry.IsZero() {
		expiresAt = sol.CfClearanceExpiry.Add(-1 * time.Minute)
	}
	f.store.Put(ctx, host, sol.Cookies, sol.UserAgent, expiresAt)

	return f.doOnce(ctx, method, targetURL, host, opts)
}

func (f *Fetcher) doOnce(ctx context.Context, method, targetURL, host string, opts Options) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, targetURL, opts.Body)
	if err != nil {
		return nil, err
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	ua := randomUserAgent()
	if cached := f.store.Get(ctx, host); cached != nil {
		if cached.UserAgent != "" {
			ua = cached.UserAgent
		}
		for _, c := range cached.Cookies {
			req.Header.Add("Cookie", c)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ua)
	}

	httpResp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	finalURL := targetURL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}

	// §4.D: accept <500 status without throwing so callers can classify it.
	if httpResp.StatusCode >= 500 {
		return &Response{StatusCode: httpResp.StatusCode, Headers: httpResp.Header, Body: body, FinalURL: finalURL},
			fmt.Errorf("protected fetch: server error %d", httpResp.StatusCode)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		FinalURL:   finalURL,
	}, nil
}

// RoundTrip adapts Fetcher to http.RoundTripper so callers that expect a
// plain *http.Client (such as the cardigann search engine) transparently get
// session caching and challenge-bypass on every request.
func (f *Fetcher) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := f.Fetch(req.Context(), req.URL.String(), Options{
		Method:    req.Method,
		Headers:   req.Header,
		Body:      req.Body,
		UseSolver: true,
	})
	if err != nil && resp == nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Headers,
		Body:       io.NopCloser(bytes.NewReader(resp.Body)),
		Request:    req,
	}, nil
}

// Client returns an *http.Client backed by this Fetcher's RoundTrip, for
// callers that only accept a standard HTTP client.
func (f *Fetcher) Client() *http.Client {
	return &http.Client{Transport: f}
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
