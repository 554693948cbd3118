package postgres

import (
	"log/slog"
	"regexp"
	"time"
)

// Default configuration values.
const (
	DefaultTable     = "inbox_sessions"
	DefaultNamespace = "default"
	DefaultTimeout   = 10 * time.Second
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// options holds PostgreSQL store configuration.
type options struct {
	table     string
	namespace string
	timeout   time.Duration
	logger    *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		table:     DefaultTable,
		namespace: DefaultNamespace,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a PostgreSQL store.
type Option func(*options)

// WithTable sets the table name. Names that are not plain SQL identifiers
// are ignored.
func WithTable(name string) Option {
	return func(o *options) {
		if identifierPattern.MatchString(name) {
			o.table = name
		}
	}
}

// WithNamespace scopes every key, so several clients (users, devices)
// can share one table.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
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
