package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/meetwise/streamcore/internal/errors"
)

func TestRetrySucceedsFirst(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("429 too many requests")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	calls := 0
	retryErr := errors.New("503 service unavailable")

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return retryErr
	})

	if !errors.Is(err, retryErr) {
		t.Errorf("Retry() = %v, want %v", err, retryErr)
	}
	if calls != 3 { // initial + 2 retries
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	calls := 0
	nonRetryErr := apperrors.New(apperrors.CodeMalformedCandidate, "bad object")

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return nonRetryErr
	})

	if !errors.Is(err, nonRetryErr) {
		t.Errorf("Retry() = %v, want %v", err, nonRetryErr)
	}
	if calls != 1 { // should not retry non-retryable errors
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		return errors.New("rate limit exceeded")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
}

func TestIsRetryableProvider(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"rate limited code", apperrors.New(apperrors.CodeRateLimited, "slow down"), true},
		{"timeout code", apperrors.New(apperrors.CodeTimeout, "too slow"), true},
		{"malformed code", apperrors.New(apperrors.CodeMalformedCandidate, "garbage"), false},
		{"429 text", errors.New("HTTP 429: too many requests"), true},
		{"rate limit text", errors.New("rate limit exceeded, retry later"), true},
		{"server error text", errors.New("server_error: overloaded"), true},
		{"502 text", errors.New("502 bad gateway"), true},
		{"timeout text", errors.New("request timeout"), true},
		{"plain error", errors.New("invalid request body"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableProvider(tt.err); got != tt.want {
				t.Errorf("IsRetryableProvider(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtractionRetryConfig(t *testing.T) {
	cfg := ExtractionRetryConfig()
	if cfg.MaxRetries != ExtractionMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, ExtractionMaxRetries)
	}
	if cfg.BaseDelay != ExtractionBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", cfg.BaseDelay, ExtractionBaseDelay)
	}
	if cfg.MaxDelay != ExtractionMaxDelay {
		t.Errorf("MaxDelay = %v, want %v", cfg.MaxDelay, ExtractionMaxDelay)
	}
}

func TestBackoffDelayGrowth(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFactor: 0.0001}

	d0 := backoffDelay(cfg, 0)
	d1 := backoffDelay(cfg, 1)
	d2 := backoffDelay(cfg, 2)

	if d0 < 90*time.Millisecond || d0 > 110*time.Millisecond {
		t.Errorf("attempt 0 delay = %v, want ~100ms", d0)
	}
	if d1 < 190*time.Millisecond || d1 > 210*time.Millisecond {
		t.Errorf("attempt 1 delay = %v, want ~200ms", d1)
	}
	if d2 < 390*time.Millisecond || d2 > 410*time.Millisecond {
		t.Errorf("attempt 2 delay = %v, want ~400ms", d2)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, JitterFactor: 0.0001}

	d5 := backoffDelay(cfg, 5)
	if d5 > 350*time.Millisecond {
		t.Errorf("attempt 5 delay = %v, want capped near 300ms", d5)
	}
}
