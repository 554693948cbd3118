package inbox

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rbaliyan/inbox/retry"
	"github.com/rbaliyan/inbox/store"
)

// runtime is the configuration and instrumentation shared by the
// components of one client.
type runtime struct {
	opts   *options
	logger *slog.Logger
	otel   *otelInstrumentation
	events atomic.Pointer[Events] // nil until a bus is connected
}

func newRuntime(opts ...Option) (*runtime, error) {
	o := newOptions(opts...)
	if o.storeRetry.IsRetryable == nil {
		o.storeRetry.IsRetryable = isRetryableStoreError
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &runtime{
		opts:   o,
		logger: o.logger,
		otel:   otelInstr,
	}, nil
}

// isRetryableStoreError keeps session store writes from retrying errors
// that cannot heal by themselves.
func isRetryableStoreError(err error) bool {
	if errors.Is(err, store.ErrNotConnected) ||
		errors.Is(err, store.ErrInvalidKey) ||
		errors.Is(err, store.ErrMalformed) {
		return false
	}
	return retry.DefaultIsRetryable(err)
}
