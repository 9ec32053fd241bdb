// Package ratelimit provides the user-facing query/grab quota ceiling per
// indexer: a purely in-memory, observational counter distinct from the
// outbound request pacing enforced by golang.org/x/time/rate in the Health
// Probe Loop and drivers.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config defines rate limit configuration.
type Config struct {
	// QueryLimit is the maximum number of queries allowed in the period
	QueryLimit int
	// QueryPeriod is the time period for query limiting
	QueryPeriod time.Duration
	// GrabLimit is the maximum number of grabs allowed in the period
	GrabLimit int
	// GrabPeriod is the time period for grab limiting
	GrabPeriod time.Duration
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		QueryLimit:  100,
		QueryPeriod: time.Hour,
		GrabLimit:   25,
		GrabPeriod:  time.Hour,
	}
}

// Limiter tracks query/grab counts per indexer, keyed by definition ID.
type Limiter struct {
	logger zerolog.Logger
	config Config

	mu          sync.RWMutex
	queryCounts map[string]*rateBucket
	grabCounts  map[string]*rateBucket
}

// rateBucket tracks rate limit state for a single indexer.
type rateBucket struct {
	count     int
	resetTime time.Time
}

// NewLimiter creates a new rate limiter.
func NewLimiter(config Config, logger zerolog.Logger) *Limiter {
	return &Limiter{
		logger:      logger.With().Str("component", "rate-limiter").Logger(),
		config:      config,
		queryCounts: make(map[string]*rateBucket),
		grabCounts:  make(map[string]*rateBucket),
	}
}

// CheckQueryLimit returns whether the indexer has reached its query limit.
func (l *Limiter) CheckQueryLimit(indexerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.getOrCreateQueryBucket(indexerID)
	l.rollIfExpired(bucket, l.config.QueryPeriod)

	if bucket.count >= l.config.QueryLimit {
		l.logger.Warn().
			Str("indexerId", indexerID).
			Int("count", bucket.count).
			Int("limit", l.config.QueryLimit).
			Msg("query rate limit reached")
		return true
	}
	return false
}

// CheckGrabLimit returns whether the indexer has reached its grab limit.
func (l *Limiter) CheckGrabLimit(indexerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.getOrCreateGrabBucket(indexerID)
	l.rollIfExpired(bucket, l.config.GrabPeriod)

	if bucket.count >= l.config.GrabLimit {
		l.logger.Warn().
			Str("indexerId", indexerID).
			Int("count", bucket.count).
			Int("limit", l.config.GrabLimit).
			Msg("grab rate limit reached")
		return true
	}
	return false
}

// RecordQuery records a query for rate limiting purposes.
func (l *Limiter) RecordQuery(indexerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.getOrCreateQueryBucket(indexerID)
	l.rollIfExpired(bucket, l.config.QueryPeriod)
	bucket.count++
}

// RecordGrab records a grab for rate limiting purposes.
func (l *Limiter) RecordGrab(indexerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.getOrCreateGrabBucket(indexerID)
	l.rollIfExpired(bucket, l.config.GrabPeriod)
	bucket.count++
}

func (l *Limiter) rollIfExpired(bucket *rateBucket, period time.Duration) {
	if time.Now().After(bucket.resetTime) {
		bucket.count = 0
		bucket.resetTime = time.Now().Add(period)
	}
}

// GetLimits returns the current rate limit status for an indexer, for the
// observational rate-limit status endpoint.
func (l *Limiter) GetLimits(indexerID string) LimitStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	query := l.peek(l.queryCounts, indexerID, l.config.QueryLimit, l.config.QueryPeriod)
	grab := l.peek(l.grabCounts, indexerID, l.config.GrabLimit, l.config.GrabPeriod)

	return LimitStatus{
		IndexerID:      indexerID,
		QueryCount:     query.count,
		QueryLimit:     l.config.QueryLimit,
		QueryResetTime: query.resetTime,
		GrabCount:      grab.count,
		GrabLimit:      l.config.GrabLimit,
		GrabResetTime:  grab.resetTime,
		QueryLimited:   query.count >= l.config.QueryLimit,
		GrabLimited:    grab.count >= l.config.GrabLimit,
	}
}

func (l *Limiter) peek(buckets map[string]*rateBucket, indexerID string, limit int, period time.Duration) rateBucket {
	bucket, exists := buckets[indexerID]
	if !exists || time.Now().After(bucket.resetTime) {
		return rateBucket{count: 0, resetTime: time.Now().Add(period)}
	}
	return *bucket
}

// Reset clears the rate limit state for an indexer.
func (l *Limiter) Reset(indexerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.queryCounts, indexerID)
	delete(l.grabCounts, indexerID)
}

// ResetAll clears all rate limit state.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.queryCounts = make(map[string]*rateBucket)
	l.grabCounts = make(map[string]*rateBucket)
}

func (l *Limiter) getOrCreateQueryBucket(indexerID string) *rateBucket {
	if bucket, exists := l.queryCounts[indexerID]; exists {
		return bucket
	}
	bucket := &rateBucket{resetTime: time.Now().Add(l.config.QueryPeriod)}
	l.queryCounts[indexerID] = bucket
	return bucket
}

func (l *Limiter) getOrCreateGrabBucket(indexerID string) *rateBucket {
	if bucket, exists := l.grabCounts[indexerID]; exists {
		return bucket
	}
	bucket := &rateBucket{resetTime: time.Now().Add(l.config.GrabPeriod)}
	l.grabCounts[indexerID] = bucket
	return bucket
}

// LimitStatus represents the current rate limit status for an indexer.
type LimitStatus struct {
	IndexerID      string    `json:"indexerId"`
	QueryCount     int       `json:"queryCount"`
	QueryLimit     int       `json:"queryLimit"`
	QueryResetTime time.Time `json:"queryResetTime"`
	GrabCount      int       `json:"grabCount"`
	GrabLimit      int       `json:"grabLimit"`
	GrabResetTime  time.Time `json:"grabResetTime"`
	QueryLimited   bool      `json:"queryLimited"`
	GrabLimited    bool      `json:"grabLimited"`
}
