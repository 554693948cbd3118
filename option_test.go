package inbox

import (
	"log/slog"
	"testing"
	"time"

	"github.com/rbaliyan/inbox/retry"
)

func TestNewOptions(t *testing.T) {
	t.Run("returns defaults without options", func(t *testing.T) {
		opts := newOptions()

		if opts.pollInterval != DefaultPollInterval {
			t.Errorf("expected pollInterval %v, got %v", DefaultPollInterval, opts.pollInterval)
		}
		if opts.defaultPageSize != DefaultPageSize {
			t.Errorf("expected defaultPageSize %v, got %v", DefaultPageSize, opts.defaultPageSize)
		}
		if opts.maxPageSize != MaxPageSize {
			t.Errorf("expected maxPageSize %v, got %v", MaxPageSize, opts.maxPageSize)
		}
		if opts.maxTitleLength != DefaultMaxTitleLength {
			t.Errorf("expected maxTitleLength %v, got %v", DefaultMaxTitleLength, opts.maxTitleLength)
		}
		if opts.maxContentLength != DefaultMaxContentLength {
			t.Errorf("expected maxContentLength %v, got %v", DefaultMaxContentLength, opts.maxContentLength)
		}
		if opts.maxConcurrentSends != DefaultMaxConcurrentSends {
			t.Errorf("expected maxConcurrentSends %v, got %v", DefaultMaxConcurrentSends, opts.maxConcurrentSends)
		}
		if opts.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("expected shutdownTimeout %v, got %v", DefaultShutdownTimeout, opts.shutdownTimeout)
		}
		if !opts.autoStartPoll {
			t.Error("expected autoStartPoll enabled")
		}
		if opts.latestIssuedWin {
			t.Error("expected last completion to win by default")
		}
		if opts.onEventPublishFailure == nil {
			t.Error("expected default publish failure handler")
		}
	})
}

func TestWithLogger(t *testing.T) {
	t.Run("sets custom logger", func(t *testing.T) {
		customLogger := slog.Default()
		opts := newOptions(WithLogger(customLogger))
		if opts.logger != customLogger {
			t.Error("expected custom logger to be set")
		}
	})

	t.Run("ignores nil logger", func(t *testing.T) {
		opts := newOptions(WithLogger(nil))
		if opts.logger == nil {
			t.Error("expected default logger when nil passed")
		}
	})
}

func TestWithPollInterval(t *testing.T) {
	t.Run("sets custom interval", func(t *testing.T) {
		opts := newOptions(WithPollInterval(30 * time.Second))
		if opts.pollInterval != 30*time.Second {
			t.Errorf("expected 30s, got %v", opts.pollInterval)
		}
	})

	t.Run("ignores interval below minimum", func(t *testing.T) {
		opts := newOptions(WithPollInterval(time.Millisecond))
		if opts.pollInterval != DefaultPollInterval {
			t.Errorf("expected default interval %v, got %v", DefaultPollInterval, opts.pollInterval)
		}
	})
}

func TestWithPageSizes(t *testing.T) {
	t.Run("default page size is capped by the maximum", func(t *testing.T) {
		opts := newOptions(WithDefaultPageSize(80), WithMaxPageSize(50))
		if opts.defaultPageSize != 50 {
			t.Errorf("expected 50, got %d", opts.defaultPageSize)
		}
	})

	t.Run("ignores non-positive values", func(t *testing.T) {
		opts := newOptions(WithDefaultPageSize(0), WithMaxPageSize(-1))
		if opts.defaultPageSize != DefaultPageSize || opts.maxPageSize != MaxPageSize {
			t.Errorf("expected defaults, got %d/%d", opts.defaultPageSize, opts.maxPageSize)
		}
	})
}

func TestWithDraftLimits(t *testing.T) {
	opts := newOptions(WithMaxTitleLength(10), WithMaxContentLength(100))
	limits := opts.draftLimits()
	if limits.MaxTitleLength != 10 || limits.MaxContentLength != 100 {
		t.Errorf("unexpected limits %+v", limits)
	}
}

func TestWithStoreRetry(t *testing.T) {
	t.Run("sets policy", func(t *testing.T) {
		opts := newOptions(WithStoreRetry(retry.Config{MaxRetries: 0}))
		if opts.storeRetry.MaxRetries != 0 {
			t.Errorf("expected no retries, got %d", opts.storeRetry.MaxRetries)
		}
	})

	t.Run("ignores negative retries", func(t *testing.T) {
		opts := newOptions(WithStoreRetry(retry.Config{MaxRetries: -1}))
		if opts.storeRetry.MaxRetries != 2 {
			t.Errorf("expected default retries, got %d", opts.storeRetry.MaxRetries)
		}
	})

	t.Run("runtime fills in the classifier", func(t *testing.T) {
		rt, err := newRuntime()
		if err != nil {
			t.Fatalf("new runtime: %v", err)
		}
		if rt.opts.storeRetry.IsRetryable == nil {
			t.Error("expected store error classifier")
		}
	})
}

func TestSafeEventPublishFailure(t *testing.T) {
	opts := newOptions(WithEventPublishFailureHandler(func(string, error) {
		panic("handler bug")
	}))
	// Must not panic.
	opts.safeEventPublishFailure("MessageSent", nil)
}
