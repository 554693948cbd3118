package inbox

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/inbox/retry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultPollInterval = 10 * time.Second // unread counter refresh interval
	MinPollInterval     = 100 * time.Millisecond

	// Listing defaults
	DefaultPage     = 1
	DefaultPageSize = 20  // messages per page when none is requested
	MaxPageSize     = 100 // requested sizes above this are capped

	// Draft limits
	DefaultMaxTitleLength   = 200
	DefaultMaxContentLength = 64 * 1024 // 64 KB

	// Credential rules in bytes, enforced by the server as well
	MinUsernameLength = 3
	MinPasswordLength = 6

	// Concurrency limits
	DefaultMaxConcurrentSends = 4
	DefaultShutdownTimeout    = 30 * time.Second // wait for in-flight sends on Close
)

// options holds configuration shared by Session, Mailbox, UnreadCounter and Client.
type options struct {
	logger *slog.Logger
	now    func() time.Time

	// Listing
	defaultPageSize int
	maxPageSize     int
	latestIssuedWin bool

	// Draft limits
	maxTitleLength   int
	maxContentLength int

	// Send
	maxConcurrentSends int
	hooks              []SendHook
	shutdownTimeout    time.Duration

	// Unread counter
	pollInterval  time.Duration
	autoStartPoll bool

	// Session store writes
	storeRetry retry.Config

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventTransport        transport.Transport     // Event transport (optional, uses noop if nil)
	redisClient           redis.UniversalClient   // Redis client for event transport (optional)
	onEventPublishFailure EventPublishFailureFunc // Callback for event publish failures (always set)
}

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g., "MessageSent"), and err is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic recovery.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:             slog.Default(),
		now:                time.Now,
		defaultPageSize:    DefaultPageSize,
		maxPageSize:        MaxPageSize,
		maxTitleLength:     DefaultMaxTitleLength,
		maxContentLength:   DefaultMaxContentLength,
		maxConcurrentSends: DefaultMaxConcurrentSends,
		shutdownTimeout:    DefaultShutdownTimeout,
		pollInterval:       DefaultPollInterval,
		autoStartPoll:      true,
		storeRetry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2.0,
			Jitter:         0.1,
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.defaultPageSize > o.maxPageSize {
		o.defaultPageSize = o.maxPageSize
	}

	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures the inbox components.
type Option func(*options)

// --- Core Options ---

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for locally stamped read times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// --- Listing Options ---

// WithDefaultPageSize sets the page size used before any Load overrides it.
// Values above the maximum page size are capped.
// Default is 20.
func WithDefaultPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultPageSize = n
		}
	}
}

// WithMaxPageSize caps the page size a Load may request.
// Default is 100.
func WithMaxPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPageSize = n
		}
	}
}

// WithLatestIssuedLoadWins makes the mailbox keep only the result of the most
// recently issued Load, discarding older completions that arrive late.
// By default the last load to complete decides the visible state.
func WithLatestIssuedLoadWins(enabled bool) Option {
	return func(o *options) {
		o.latestIssuedWin = enabled
	}
}

// --- Draft Options ---

// WithMaxTitleLength sets the maximum title length in characters.
// Default is 200.
func WithMaxTitleLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTitleLength = n
		}
	}
}

// WithMaxContentLength sets the maximum content size in bytes.
// Default is 64 KB.
func WithMaxContentLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxContentLength = n
		}
	}
}

// --- Send Options ---

// WithMaxConcurrentSends sets the maximum number of sends in flight at once.
// Default is 4.
func WithMaxConcurrentSends(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentSends = n
		}
	}
}

// WithShutdownTimeout sets how long Client.Close waits for in-flight sends.
// Default is 30 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithSendHook registers a hook that runs around every send.
// Multiple hooks run in registration order.
func WithSendHook(h SendHook) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = append(o.hooks, h)
		}
	}
}

// --- Unread Counter Options ---

// WithPollInterval sets the unread counter refresh interval used when
// polling is started without an explicit interval.
// Default is 10 seconds. Minimum is 100 milliseconds.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= MinPollInterval {
			o.pollInterval = d
		}
	}
}

// WithAutoStartUnreadCount controls whether the unread counter starts
// polling as soon as a session becomes active.
// Default is true.
func WithAutoStartUnreadCount(enabled bool) Option {
	return func(o *options) {
		o.autoStartPoll = enabled
	}
}

// --- Session Store Options ---

// WithStoreRetry sets the retry policy for session store writes.
// A nil IsRetryable keeps the default classification, which never
// retries a store that is closed or a record that is malformed.
func WithStoreRetry(cfg retry.Config) Option {
	return func(o *options) {
		if cfg.MaxRetries >= 0 {
			o.storeRetry = cfg
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for OpenTelemetry telemetry.
// Default is "inbox".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventTransport sets the event transport used by the client's event bus.
// If not provided, a noop transport is used (events are silently dropped).
//
// Example with the in-process channel transport:
//
//	client, _ := inbox.NewClient(svc, auth, st, inbox.WithEventTransport(channel.New()))
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// Ignored when WithEventTransport is also given.
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing failures.
// Publishing failures never fail the operation that triggered them.
// By default, failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}

// draftLimits returns the configured draft limits.
func (o *options) draftLimits() DraftLimits {
	return DraftLimits{
		MaxTitleLength:   o.maxTitleLength,
		MaxContentLength: o.maxContentLength,
	}
}
