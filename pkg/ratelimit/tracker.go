package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_rate_limit_remaining",
		Help: "Requests remaining in the upstream rate limit window, -1 when unknown",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_blocks_total",
		Help: "Total number of requests refused while the upstream window is exhausted",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_rate_limit_wait_seconds",
		Help:    "Time spent waiting on the client-side token bucket",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	})
)

// Tracker gates requests with a token bucket and remembers upstream limits.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.Mutex
	state RateLimitState
}

// NewTracker creates a tracker allowing rps requests per second with the
// given burst. rps <= 0 disables the token bucket.
func NewTracker(rps float64, burst int, logger zerolog.Logger) *Tracker {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		state: RateLimitState{
			Remaining:  RemainingUnknown,
			LastUpdate: time.Now(),
			IsHealthy:  true,
		},
	}
}

// GetState returns a copy of the current rate limit state.
func (t *Tracker) GetState() RateLimitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateFromResponse folds the rate-limit signals of resp into the state.
func (t *Tracker) UpdateFromResponse(resp *http.Response) error {
	if resp == nil {
		return nil
	}

	now := time.Now()

	if resp.StatusCode == http.StatusTooManyRequests {
		block := parseRetryAfter(resp.Header.Get(HeaderRetryAfter), now)
		t.set(RateLimitState{
			Remaining:  0,
			ResetAt:    now.Add(block),
			LastUpdate: now,
		})
		t.logger.Error().
			Dur("retry_after", block).
			Msg("Upstream rate limit hit - requests will be blocked")
		return nil
	}

	remainStr := resp.Header.Get(HeaderRemaining)
	if remainStr == "" {
		// Most responses carry no rate-limit headers
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	state := RateLimitState{
		Remaining:  remain,
		ResetAt:    now.Add(DefaultBlockDuration),
		LastUpdate: now,
	}
	if resetStr := resp.Header.Get(HeaderReset); resetStr != "" {
		resetSeconds, err := strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		state.ResetAt = now.Add(time.Duration(resetSeconds) * time.Second)
	}
	t.set(state)

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit running low")
	} else {
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}

	return nil
}

func (t *Tracker) set(state RateLimitState) {
	state.UpdateHealth()
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
	rateLimitRemaining.Set(float64(state.Remaining))
}

// ShouldAllowRequest reports whether a request may go out now. It returns
// false while the upstream window is exhausted; otherwise it waits for a
// token and returns true, or returns the context error.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state := t.GetState()

	if state.NeedsCriticalBlock() {
		t.logger.Warn().
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream rate limit exhausted - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}
	rateLimitWaitSeconds.Observe(time.Since(start).Seconds())

	return true, nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultBlockDuration
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return DefaultBlockDuration
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return DefaultBlockDuration
}
