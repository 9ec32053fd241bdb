// Package solver implements a thin client for an external challenge-solver
// service (a browser-automation sidecar such as FlareSolverr). All outgoing
// requests are serialized onto a single FIFO queue: the solver itself can
// only drive one browser session at a time, so the client never lets two
// solve() calls race each other.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/indexer/session"
)

// sessionAdapter adapts Client to the session.Solver interface so the
// protected fetcher can depend on an interface rather than this package.
type sessionAdapter struct {
	client *Client
}

// AsSessionSolver exposes the client via the session package's narrow Solver interface.
func (c *Client) AsSessionSolver() session.Solver {
	return sessionAdapter{client: c}
}

func (a sessionAdapter) Enabled() bool { return a.client.Enabled() }

func (a sessionAdapter) Solve(ctx context.Context, url string, maxTimeoutMs int) (*session.SolveResult, error) {
	sol, err := a.client.Solve(ctx, url, maxTimeoutMs)
	if err != nil {
		return nil, err
	}
	return &session.SolveResult{
		Cookies:           sol.Cookies,
		UserAgent:         sol.UserAgent,
		FinalURL:          sol.FinalURL,
		Status:            sol.Status,
		CfClearanceExpiry: sol.CfClearanceExpiry,
	}, nil
}

// Solution is what the solver returns on success.
type Solution struct {
	OK      bool
	Cookies []string
	// CfClearanceExpiry is the real expiry of the cf_clearance cookie, as
	// reported by the solver, or the zero Time if the solver didn't return
	// one (no cf_clearance cookie, or it returned an expiry-less session
	// cookie). §4.D item 3's TTL formula needs this real value rather than
	// a flat default.
	CfClearanceExpiry time.Time
	UserAgent         string
	HTML              string
	FinalURL          string
	Status            int
}

type sessionsListRequest struct {
	Cmd string `json:"cmd"`
}

type requestGetRequest struct {
	Cmd               string `json:"cmd"`
	URL               string `json:"url"`
	MaxTimeout        int    `json:"maxTimeout"`
	ReturnOnlyCookies bool   `json:"returnOnlyCookies"`
}

type solverCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	// Expires is a Unix timestamp in seconds, or 0/-1 for a session cookie
	// with no fixed expiry, matching FlareSolverr's cookie JSON shape.
	Expires float64 `json:"expires"`
}

type solverSolution struct {
	URL       string         `json:"url"`
	Status    int            `json:"status"`
	Cookies   []solverCookie `json:"cookies"`
	UserAgent string         `json:"userAgent"`
	Response  string         `json:"response"`
}

type solverResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Solution *solverSolution `json:"solution"`
}

// job is one queued solve request.
type job struct {
	ctx        context.Context
	url        string
	maxTimeout time.Duration
	resultCh   chan jobResult
}

type jobResult struct {
	sol *Solution
	err error
}

// Client serializes all calls to the external solver onto one worker goroutine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu           sync.Mutex
	endpointBase string // discovered root, either baseURL or baseURL+"/v1"
	discovered   bool

	queue chan job
	once  sync.Once
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	OuterTimeout   time.Duration
	HTTPClient     *http.Client
}

// New creates a Client and starts its single FIFO worker goroutine.
func New(cfg Config, logger zerolog.Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: hc,
		logger:     logger.With().Str("component", "solver").Logger(),
		queue:      make(chan job, 64),
	}
	go c.worker()
	return c
}

// Enabled reports whether a solver endpoint has been configured at all.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Solve requests that the solver fetch url and return cookies/user-agent,
// enqueuing onto the client's single worker so that at most one solve is ever
// in flight. maxTimeoutMs bounds the solver's own browser-automation attempt;
// the outer call additionally allows 10s for the round trip itself, per the
// protocol's "outer timeout = maxTimeoutMs+10s, never retry in-loop" contract.
func (c *Client) Solve(ctx context.Context, url string, maxTimeoutMs int) (*Solution, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("solver: not configured")
	}

	outer := time.Duration(maxTimeoutMs)*time.Millisecond + 10*time.Second
	ctx, cancel := context.WithTimeout(ctx, outer)
	defer cancel()

	j := job{
		ctx:        ctx,
		url:        url,
		maxTimeout: time.Duration(maxTimeoutMs) * time.Millisecond,
		resultCh:   make(chan jobResult, 1),
	}

	select {
	case c.queue <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.resultCh:
		return res.sol, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worker drains the queue strictly one job at a time, for the lifetime of the process.
func (c *Client) worker() {
	for j := range c.queue {
		sol, err := c.solveOne(j.ctx, j.url, j.maxTimeout)
		j.resultCh <- jobResult{sol: sol, err: err}
	}
}

func (c *Client) solveOne(ctx context.Context, url string, maxTimeout time.Duration) (*Solution, error) {
	base, err := c.discoverEndpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("solver: endpoint discovery failed: %w", err)
	}

	reqBody := requestGetRequest{
		Cmd:               "request.get",
		URL:               url,
		MaxTimeout:        int(maxTimeout.Milliseconds()),
		ReturnOnlyCookies: false,
	}

	resp, err := c.post(ctx, base, reqBody)
	if err != nil {
		return nil, err
	}

	if resp.Status != "ok" || resp.Solution == nil {
		return nil, fmt.Errorf("solver: %s", resp.Message)
	}

	cookies := make([]string, 0, len(resp.Solution.Cookies))
	var cfExpiry time.Time
	for _, ck := range resp.Solution.Cookies {
		cookies = append(cookies, fmt.Sprintf("%s=%s", ck.Name, ck.Value))
		if ck.Name == "cf_clearance" && ck.Expires > 0 {
			cfExpiry = time.Unix(int64(ck.Expires), 0)
		}
	}

	return &Solution{
		OK:                true,
		Cookies:           cookies,
		CfClearanceExpiry: cfExpiry,
		UserAgent:         resp.Solution.UserAgent,
		HTML:              resp.Solution.Response,
		FinalURL:          resp.Solution.URL,
		Status:            resp.Solution.Status,
	}, nil
}

// discoverEndpoint probes the configured base, then base+"/v1", with a cheap
// sessions.list call, and caches the winner for the lifetime of the process.
func (c *Client) discoverEndpoint(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.discovered {
		base := c.endpointBase
		c.mu.Unlock()
		return base, nil
	}
	c.mu.Unlock()

	candidates := []string{c.baseURL, c.baseURL + "/v1"}
	var lastErr error
	for _, candidate := range candidates {
		_, err := c.post(ctx, candidate, sessionsListRequest{Cmd: "sessions.list"})
		if err == nil {
			c.mu.Lock()
			c.endpointBase = candidate
			c.discovered = true
			c.mu.Unlock()
			return candidate, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) post(ctx context.Context, base string, payload interface{}) (*solverResponse, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var sr solverResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("solver: invalid response: %w", err)
	}
	if sr.Status != "ok" {
		return &sr, fmt.Errorf("solver: %s", sr.Message)
	}
	return &sr, nil
}
