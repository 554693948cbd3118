package api

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultBasePath = "/api/v1"
	DefaultTimeout  = 10 * time.Second // per request, including reading the body

	// maxBodySize bounds how much of a response body is read.
	maxBodySize = 4 << 20
)

type options struct {
	basePath   string
	timeout    time.Duration
	httpClient *http.Client
	token      string
	userAgent  string
	logger     *slog.Logger

	instrument     bool
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Client.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		basePath:  DefaultBasePath,
		timeout:   DefaultTimeout,
		userAgent: "inbox-go",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithBasePath sets the path prefix of every endpoint.
// Default is "/api/v1". An empty path addresses endpoints at the root.
func WithBasePath(p string) Option {
	return func(o *options) {
		o.basePath = p
	}
}

// WithTimeout sets the request timeout.
// Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHTTPClient sets the underlying HTTP client. Its Timeout is left
// alone; the request timeout is applied per request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithToken sets the initial bearer token.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOTel wraps the HTTP transport with OpenTelemetry client
// instrumentation.
// Default is disabled.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.instrument = enabled
	}
}

// WithTracerProvider sets the tracer provider used when instrumentation
// is enabled. Default uses the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider used when instrumentation
// is enabled. Default uses the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}
