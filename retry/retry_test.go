package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDo(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		var retried []int
		cfg := fastConfig(3)
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		}
		err := Do(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
			t.Errorf("unexpected OnRetry attempts: %v", retried)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
			calls++
			return errBoom
		})
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		if !errors.Is(err, ErrMaxRetries) {
			t.Errorf("expected ErrMaxRetries, got %v", err)
		}
		if !errors.Is(err, errBoom) {
			t.Errorf("expected cause to be preserved, got %v", err)
		}
		var re *Error
		if !errors.As(err, &re) || re.Attempts != 3 {
			t.Errorf("expected *Error with 3 attempts, got %#v", err)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
			calls++
			return Permanent(errBoom)
		})
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if !errors.Is(err, ErrNotRetryable) {
			t.Errorf("expected ErrNotRetryable, got %v", err)
		}
	})

	t.Run("custom classifier", func(t *testing.T) {
		calls := 0
		cfg := fastConfig(5)
		cfg.IsRetryable = func(err error) bool { return !errors.Is(err, errBoom) }
		_ = Do(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return errBoom
		})
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("canceled context before first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := Do(ctx, fastConfig(3), func(ctx context.Context) error {
			calls++
			return nil
		})
		if calls != 0 {
			t.Errorf("expected no calls, got %d", calls)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("canceled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := Config{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
		err := Do(ctx, cfg, func(ctx context.Context) error {
			cancel()
			return Transient(errBoom)
		})
		if !errors.Is(err, ErrContextCanceled) {
			t.Errorf("expected ErrContextCanceled, got %v", err)
		}
	})
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), fastConfig(2), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" {
		t.Errorf("expected ok, got %q", v)
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 50 * time.Millisecond},
		{10, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Backoff(cfg, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	cfg.Jitter = 0.5
	for range 20 {
		d := Backoff(cfg, 0)
		if d < 5*time.Millisecond || d > 15*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", d)
		}
	}
}

func TestDefaultIsRetryable(t *testing.T) {
	if DefaultIsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if DefaultIsRetryable(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
	if !DefaultIsRetryable(errors.New("x")) {
		t.Error("unknown errors should be retryable")
	}
	if DefaultIsRetryable(Permanent(errors.New("x"))) {
		t.Error("permanent errors should not be retryable")
	}
	if !DefaultIsRetryable(Transient(context.Canceled)) {
		t.Error("explicitly transient errors should be retryable")
	}
}
