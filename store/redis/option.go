package redis

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultPrefix  = "inbox:session:"
	DefaultTimeout = 10 * time.Second
)

// options holds Redis store configuration.
type options struct {
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a Redis store.
type Option func(*options)

// WithPrefix sets the prefix prepended to every key.
// Use a per-user or per-device prefix when several sessions share one Redis.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithTTL expires stored values after d. Zero (the default) keeps them
// until removed.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.ttl = d
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
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
