package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single configuration validation error
type ValidationError struct {
	Field   string // The config field path (e.g., "store.type")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidStoreTypes returns the supported session store backends
func ValidStoreTypes() []string {
	return []string{"memory", "file", "redis", "postgres", "mongo"}
}

// ValidTransports returns the supported event transports
func ValidTransports() []string {
	return []string{"none", "channel", "redis"}
}

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateMailbox()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateEvents()...)
	errors = append(errors, c.validateLog()...)
	return errors
}

func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "api.base_url",
			Value:   c.API.BaseURL,
			Message: "must be an http or https URL",
		})
	}
	if c.API.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "api.timeout",
			Value:   c.API.Timeout,
			Message: "must be positive",
		})
	}
	return errors
}

func (c *Config) validateMailbox() []ValidationError {
	var errors []ValidationError

	if c.Mailbox.PageSize < 1 || c.Mailbox.PageSize > 100 {
		errors = append(errors, ValidationError{
			Field:   "mailbox.page_size",
			Value:   c.Mailbox.PageSize,
			Message: "must be between 1 and 100",
		})
	}
	if c.Mailbox.PollInterval < time.Second {
		errors = append(errors, ValidationError{
			Field:   "mailbox.poll_interval",
			Value:   c.Mailbox.PollInterval,
			Message: "must be at least 1s",
		})
	}
	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	required := func(field, value string) {
		if value == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   value,
				Message: fmt.Sprintf("is required for the %s store", c.Store.Type),
			})
		}
	}

	switch c.Store.Type {
	case "memory":
	case "file":
		required("store.path", c.Store.Path)
		if c.Store.SealKey != "" {
			if key, err := hex.DecodeString(c.Store.SealKey); err != nil || len(key) != 32 {
				errors = append(errors, ValidationError{
					Field:   "store.seal_key",
					Value:   "<redacted>",
					Message: "must be 64 hex characters",
				})
			}
		}
	case "redis":
		required("store.addr", c.Store.Addr)
	case "postgres":
		required("store.dsn", c.Store.DSN)
	case "mongo":
		required("store.uri", c.Store.URI)
	default:
		errors = append(errors, ValidationError{
			Field:   "store.type",
			Value:   c.Store.Type,
			Message: "must be one of " + strings.Join(ValidStoreTypes(), ", "),
		})
	}
	return errors
}

func (c *Config) validateEvents() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidTransports(), c.Events.Transport) {
		errors = append(errors, ValidationError{
			Field:   "events.transport",
			Value:   c.Events.Transport,
			Message: "must be one of " + strings.Join(ValidTransports(), ", "),
		})
		return errors
	}
	if c.Events.Transport == "redis" && c.Events.RedisAddr == "" && c.Store.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "events.redis_addr",
			Value:   "",
			Message: "is required for the redis transport unless store.addr is set",
		})
	}
	return errors
}

func (c *Config) validateLog() []ValidationError {
	var errors []ValidationError

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: "must be one of debug, info, warn, error",
		})
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Log.Format)) {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Value:   c.Log.Format,
			Message: "must be text or json",
		})
	}
	return errors
}

// SealKeyBytes decodes store.seal_key. ok is false when no key is configured.
func (s StoreConfig) SealKeyBytes() (key [32]byte, ok bool, err error) {
	if s.SealKey == "" {
		return key, false, nil
	}
	b, err := hex.DecodeString(s.SealKey)
	if err != nil {
		return key, false, fmt.Errorf("decode seal key: %w", err)
	}
	if len(b) != len(key) {
		return key, false, fmt.Errorf("seal key must be %d bytes, got %d", len(key), len(b))
	}
	copy(key[:], b)
	return key, true, nil
}

// EventsRedisAddr returns the redis address for the event transport
func (c *Config) EventsRedisAddr() string {
	if c.Events.RedisAddr != "" {
		return c.Events.RedisAddr
	}
	return c.Store.Addr
}
