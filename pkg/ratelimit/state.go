// Package ratelimit throttles outgoing requests and tracks upstream
// rate-limit signals (429 responses, Retry-After, X-RateLimit-* headers).
package ratelimit

import (
	"time"
)

// Header names understood by the tracker.
const (
	HeaderRetryAfter = "Retry-After"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
)

// Thresholds for rate limit decisions.
const (
	// RemainingUnknown marks a state built without any upstream signal.
	RemainingUnknown = -1

	// ThresholdWarning is the remaining-request count below which the
	// tracker logs throttling warnings.
	ThresholdWarning = 10

	// DefaultBlockDuration applies when a 429 arrives without a usable Retry-After.
	DefaultBlockDuration = 60 * time.Second
)

// RateLimitState is the last rate-limit picture reported by the upstream.
type RateLimitState struct {
	// Remaining is the number of requests the upstream will still accept in
	// the current window, or RemainingUnknown.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window (or a 429 block) ends.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is false while blocked or throttled.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true while the upstream has no capacity left
// and the window has not reset yet.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining == 0 && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true when capacity is low but not exhausted.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining > 0 && s.Remaining < ThresholdWarning
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field from the other fields.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = !s.NeedsCriticalBlock() && !s.NeedsThrottling()
}
