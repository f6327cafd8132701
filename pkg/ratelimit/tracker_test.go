package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newResponse(status int, headers map[string]string) *http.Response {
	resp := &http.Response{StatusCode: status, Header: make(http.Header)}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func TestNewTracker_InitialState(t *testing.T) {
	tracker := NewTracker(10, 5, zerolog.Nop())

	state := tracker.GetState()
	if state.Remaining != RemainingUnknown {
		t.Errorf("Remaining = %d, want %d", state.Remaining, RemainingUnknown)
	}
	if !state.IsHealthy {
		t.Error("expected initial state to be healthy")
	}
}

func TestUpdateFromResponse_TooManyRequests(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		minBlock   time.Duration
		maxBlock   time.Duration
	}{
		{name: "delta seconds", retryAfter: "30", minBlock: 29 * time.Second, maxBlock: 30 * time.Second},
		{name: "missing header", retryAfter: "", minBlock: DefaultBlockDuration - time.Second, maxBlock: DefaultBlockDuration},
		{name: "garbage", retryAfter: "soon", minBlock: DefaultBlockDuration - time.Second, maxBlock: DefaultBlockDuration},
		{
			name:       "http date",
			retryAfter: time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat),
			minBlock:   110 * time.Second,
			maxBlock:   2 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(0, 1, zerolog.Nop())
			headers := map[string]string{}
			if tt.retryAfter != "" {
				headers[HeaderRetryAfter] = tt.retryAfter
			}

			if err := tracker.UpdateFromResponse(newResponse(http.StatusTooManyRequests, headers)); err != nil {
				t.Fatalf("UpdateFromResponse() error = %v", err)
			}

			state := tracker.GetState()
			if state.Remaining != 0 {
				t.Errorf("Remaining = %d, want 0", state.Remaining)
			}
			if state.IsHealthy {
				t.Error("expected unhealthy state after 429")
			}
			if d := state.TimeUntilReset(); d < tt.minBlock || d > tt.maxBlock {
				t.Errorf("TimeUntilReset() = %v, want in [%v, %v]", d, tt.minBlock, tt.maxBlock)
			}
		})
	}
}

func TestUpdateFromResponse_Headers(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		wantErr       bool
		wantRemaining int
	}{
		{name: "no headers leaves state untouched", headers: nil, wantRemaining: RemainingUnknown},
		{name: "remaining and reset", headers: map[string]string{HeaderRemaining: "42", HeaderReset: "15"}, wantRemaining: 42},
		{name: "remaining only", headers: map[string]string{HeaderRemaining: "7"}, wantRemaining: 7},
		{name: "invalid remaining", headers: map[string]string{HeaderRemaining: "abc"}, wantErr: true, wantRemaining: RemainingUnknown},
		{name: "invalid reset", headers: map[string]string{HeaderRemaining: "5", HeaderReset: "x"}, wantErr: true, wantRemaining: RemainingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(0, 1, zerolog.Nop())
			err := tracker.UpdateFromResponse(newResponse(http.StatusOK, tt.headers))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateFromResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := tracker.GetState().Remaining; got != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", got, tt.wantRemaining)
			}
		})
	}
}

func TestUpdateFromResponse_Nil(t *testing.T) {
	tracker := NewTracker(0, 1, zerolog.Nop())
	if err := tracker.UpdateFromResponse(nil); err != nil {
		t.Errorf("UpdateFromResponse(nil) error = %v", err)
	}
}

func TestShouldAllowRequest(t *testing.T) {
	t.Run("allows with unknown state", func(t *testing.T) {
		tracker := NewTracker(0, 1, zerolog.Nop())
		allowed, err := tracker.ShouldAllowRequest(context.Background())
		if err != nil || !allowed {
			t.Errorf("ShouldAllowRequest() = %v, %v; want true, nil", allowed, err)
		}
	})

	t.Run("blocks after 429", func(t *testing.T) {
		tracker := NewTracker(0, 1, zerolog.Nop())
		_ = tracker.UpdateFromResponse(newResponse(http.StatusTooManyRequests, map[string]string{HeaderRetryAfter: "60"}))

		allowed, err := tracker.ShouldAllowRequest(context.Background())
		if err != nil || allowed {
			t.Errorf("ShouldAllowRequest() = %v, %v; want false, nil", allowed, err)
		}
	})

	t.Run("allows again once the window resets", func(t *testing.T) {
		tracker := NewTracker(0, 1, zerolog.Nop())
		_ = tracker.UpdateFromResponse(newResponse(http.StatusTooManyRequests, map[string]string{HeaderRetryAfter: "0"}))

		allowed, err := tracker.ShouldAllowRequest(context.Background())
		if err != nil || !allowed {
			t.Errorf("ShouldAllowRequest() = %v, %v; want true, nil", allowed, err)
		}
	})

	t.Run("throttled still allows", func(t *testing.T) {
		tracker := NewTracker(0, 1, zerolog.Nop())
		_ = tracker.UpdateFromResponse(newResponse(http.StatusOK, map[string]string{HeaderRemaining: "3"}))

		allowed, err := tracker.ShouldAllowRequest(context.Background())
		if err != nil || !allowed {
			t.Errorf("ShouldAllowRequest() = %v, %v; want true, nil", allowed, err)
		}
	})
}

func TestShouldAllowRequest_TokenBucket(t *testing.T) {
	// One token per hour: the second call can only return via the context.
	tracker := NewTracker(1.0/3600, 1, zerolog.Nop())

	if allowed, err := tracker.ShouldAllowRequest(context.Background()); err != nil || !allowed {
		t.Fatalf("first request = %v, %v; want true, nil", allowed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if allowed {
		t.Error("expected second request to be refused")
	}
	if err == nil {
		t.Fatal("expected error from exhausted token bucket")
	}
}

func TestShouldAllowRequest_CancelledContext(t *testing.T) {
	tracker := NewTracker(1, 1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.ShouldAllowRequest(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
