package inbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/rbaliyan/inbox/store"
)

func TestValidationError(t *testing.T) {
	t.Run("Error message format", func(t *testing.T) {
		err := &ValidationError{Field: "title", Message: "too long", Err: ErrInvalidDraft}
		if !strings.Contains(err.Error(), "title") || !strings.Contains(err.Error(), "too long") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("Unwrap defaults to ErrValidation", func(t *testing.T) {
		err := &ValidationError{Message: "rejected by server"}
		if !errors.Is(err, ErrValidation) {
			t.Error("expected errors.Is to return true for ErrValidation")
		}
		if errors.Is(err, ErrInvalidDraft) {
			t.Error("expected no match for ErrInvalidDraft")
		}
	})

	t.Run("specific sentinels match the root", func(t *testing.T) {
		for _, sentinel := range []error{ErrInvalidDraft, ErrInvalidFilter, ErrInvalidCredentials} {
			if !errors.Is(sentinel, ErrValidation) {
				t.Errorf("expected %v to wrap ErrValidation", sentinel)
			}
		}
	})
}

func TestServiceError(t *testing.T) {
	t.Run("matches ErrService and its cause", func(t *testing.T) {
		err := fmt.Errorf("load: %w", &ServiceError{Op: "list", StatusCode: 401, Err: ErrUnauthorized})
		if !errors.Is(err, ErrService) {
			t.Error("expected errors.Is to return true for ErrService")
		}
		if !errors.Is(err, ErrUnauthorized) {
			t.Error("expected errors.Is to return true for ErrUnauthorized")
		}
		if !strings.Contains(err.Error(), "401") {
			t.Errorf("expected status in message, got %q", err.Error())
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		if !(&ServiceError{Op: "list", Err: context.DeadlineExceeded}).Timeout() {
			t.Error("expected deadline to be a timeout")
		}
		netErr := &net.DNSError{Err: "timeout", IsTimeout: true}
		if !(&ServiceError{Op: "list", Err: netErr}).Timeout() {
			t.Error("expected net timeout to be a timeout")
		}
		if (&ServiceError{Op: "list", StatusCode: 500, Err: errors.New("boom")}).Timeout() {
			t.Error("expected no timeout")
		}
	})
}

func TestStateError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &StateError{Key: store.KeyUser, Err: cause}

	if !errors.Is(err, ErrMalformedSession) {
		t.Error("expected errors.Is to return true for ErrMalformedSession")
	}
	if !errors.Is(err, store.ErrMalformed) {
		t.Error("expected errors.Is to return true for store.ErrMalformed")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to return true for the cause")
	}
	if !strings.Contains(err.Error(), store.KeyUser) {
		t.Errorf("expected key in message, got %q", err.Error())
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", &ValidationError{Message: "bad"}, false},
		{"invalid draft", ErrInvalidDraft, false},
		{"malformed session", &StateError{Key: "token", Err: errors.New("x")}, false},
		{"unauthorized", &ServiceError{Op: "list", StatusCode: 401, Err: ErrUnauthorized}, false},
		{"not found", &ServiceError{Op: "mark_read", StatusCode: 404, Err: ErrNotFound}, false},
		{"no session", ErrNoSession, false},
		{"canceled", context.Canceled, false},
		{"network", &ServiceError{Op: "list", Err: errors.New("connection refused")}, true},
		{"rate limited", &ServiceError{Op: "send", StatusCode: 429, Err: errors.New("slow down")}, true},
		{"server error", &ServiceError{Op: "send", StatusCode: 503, Err: errors.New("unavailable")}, true},
		{"conflict", &ServiceError{Op: "send", StatusCode: 409, Err: errors.New("conflict")}, false},
		{"store not found", store.ErrNotFound, false},
		{"store invalid key", store.ErrInvalidKey, false},
		{"unknown", errors.New("something"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	if got := errorMessage(nil); got != "" {
		t.Errorf("expected empty message, got %q", got)
	}
	if got := errorMessage(&ValidationError{Field: "page", Message: "must be at least 1"}); got != "page: must be at least 1" {
		t.Errorf("unexpected message %q", got)
	}
	if got := errorMessage(&ValidationError{Message: "Title is required"}); got != "Title is required" {
		t.Errorf("unexpected message %q", got)
	}
	if got := errorMessage(errors.New("boom")); got != "boom" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestHookError(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := &HookError{Hook: "quota", Op: "BeforeSend", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to return true for the cause")
	}
	if !strings.Contains(err.Error(), "quota") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
