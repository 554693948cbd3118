package inbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rbaliyan/inbox/store"
)

// Sentinel errors for the inbox package.
// Use errors.Is() to check for these errors.
var (
	// ErrValidation is the root of every validation failure.
	ErrValidation = errors.New("inbox: validation failed")

	// ErrInvalidDraft is returned when a draft is rejected before or by the server.
	ErrInvalidDraft = fmt.Errorf("%w: invalid draft", ErrValidation)

	// ErrInvalidFilter is returned for an unusable page, size, status or channel.
	ErrInvalidFilter = fmt.Errorf("%w: invalid filter", ErrValidation)

	// ErrInvalidCredentials is returned for credentials that cannot be submitted.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrValidation)

	// ErrService is the root of every transport, HTTP or authorization failure.
	ErrService = errors.New("inbox: service error")

	// ErrUnauthorized is returned when the credential is missing, expired or rejected.
	ErrUnauthorized = errors.New("inbox: unauthorized")

	// ErrNotFound is returned when a message does not exist or belongs to someone else.
	ErrNotFound = errors.New("inbox: not found")

	// ErrMalformedSession is returned when a persisted session record cannot be trusted.
	// Wraps store.ErrMalformed for consistent error checking.
	ErrMalformedSession = fmt.Errorf("inbox: %w", store.ErrMalformed)

	// ErrNoSession is returned by write operations attempted without an active session.
	ErrNoSession = errors.New("inbox: no active session")

	// ErrServiceRequired is returned when no message service is configured.
	ErrServiceRequired = errors.New("inbox: message service is required")

	// ErrAuthRequired is returned when no auth service is configured.
	ErrAuthRequired = errors.New("inbox: auth service is required")

	// ErrStoreRequired is returned when no session store is configured.
	ErrStoreRequired = errors.New("inbox: session store is required")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("inbox: %w", store.ErrAlreadyConnected)

	// ErrNotConnected is returned when the client is used before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("inbox: %w", store.ErrNotConnected)
)

// ValidationError reports a malformed request payload, either rejected
// locally before any request was issued or rejected by the server.
type ValidationError struct {
	Field   string // The offending field, empty when the server did not say
	Message string // Human-readable error message
	Err     error  // One of ErrInvalidDraft, ErrInvalidFilter, ErrInvalidCredentials; ErrValidation if nil
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("inbox: validation failed: %s", e.Message)
	}
	return fmt.Sprintf("inbox: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrValidation
	}
	return e.Err
}

// ServiceError reports a network, transport, HTTP or authorization failure
// while talking to the remote service.
type ServiceError struct {
	Op         string // Operation name, e.g. "list", "send", "login"
	StatusCode int    // HTTP status, 0 when no response was received
	Err        error  // Underlying cause
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inbox: %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inbox: %s failed: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is makes every ServiceError match ErrService.
func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}

// Timeout reports whether the failure was a deadline being exceeded.
func (e *ServiceError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// StateError reports a locally persisted session record that is malformed.
type StateError struct {
	Key string // Session store key that held the bad record
	Err error  // Underlying cause
}

func (e *StateError) Error() string {
	return fmt.Sprintf("inbox: malformed session record %q: %v", e.Key, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Is makes every StateError match ErrMalformedSession and store.ErrMalformed.
func (e *StateError) Is(target error) bool {
	return target == ErrMalformedSession || target == store.ErrMalformed
}

// IsRetryableError determines if an error is retryable.
// Validation, state and authorization failures are permanent; other
// service failures (network, timeout, 5xx, 429) are transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMalformedSession) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoSession) ||
		errors.Is(err, context.Canceled) {
		return false
	}

	var se *ServiceError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 0:
			return true
		case se.StatusCode == http.StatusTooManyRequests:
			return true
		case se.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	// Store-level permanent errors
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrMalformed) || errors.Is(err, store.ErrInvalidKey) {
		return false
	}

	// For unknown errors, default to retryable
	return true
}

// errorMessage renders err for the LastError accessors.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			return ve.Message
		}
		return ve.Field + ": " + ve.Message
	}
	return err.Error()
}
