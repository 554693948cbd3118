package file

import (
	"log/slog"
	"os"
)

// Default configuration values.
const (
	DefaultFileMode os.FileMode = 0o600
	DefaultDirMode  os.FileMode = 0o700
)

// options holds file store configuration.
type options struct {
	fileMode os.FileMode
	dirMode  os.FileMode
	sealKey  *[KeySize]byte
	logger   *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		fileMode: DefaultFileMode,
		dirMode:  DefaultDirMode,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a file store.
type Option func(*options)

// WithFileMode sets the permission bits of the session file.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		if mode != 0 {
			o.fileMode = mode
		}
	}
}

// WithDirMode sets the permission bits used when creating the parent directory.
func WithDirMode(mode os.FileMode) Option {
	return func(o *options) {
		if mode != 0 {
			o.dirMode = mode
		}
	}
}

// WithSealKey encrypts the file at rest with NaCl secretbox under key.
// A file written without a key cannot be read with one, and vice versa;
// such a file reads as store.ErrMalformed.
func WithSealKey(key [KeySize]byte) Option {
	return func(o *options) {
		k := key
		o.sealKey = &k
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
