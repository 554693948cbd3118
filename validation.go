package inbox

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DraftLimits holds the draft validation limits.
type DraftLimits struct {
	MaxTitleLength   int // in characters
	MaxContentLength int // in bytes, after normalization
}

// DefaultDraftLimits returns the default draft limits.
func DefaultDraftLimits() DraftLimits {
	return DraftLimits{
		MaxTitleLength:   DefaultMaxTitleLength,
		MaxContentLength: DefaultMaxContentLength,
	}
}

func draftError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Err: ErrInvalidDraft}
}

// ValidateDraft checks d against limits and returns the draft with its
// title and content normalized to NFC. Nothing is sent for a draft that
// fails validation.
func ValidateDraft(d Draft, limits DraftLimits) (Draft, error) {
	if !d.Channel.Valid() {
		return d, draftError("channel", "unsupported channel %q", d.Channel)
	}
	if d.ReceiverID <= 0 {
		return d, draftError("receiverId", "is required")
	}
	if d.SenderID < 0 {
		return d, draftError("senderId", "must not be negative")
	}
	if !d.Priority.Valid() {
		return d, draftError("priority", "unsupported priority %q", d.Priority)
	}

	if !utf8.ValidString(d.Title) {
		return d, draftError("title", "contains invalid UTF-8")
	}
	if !utf8.ValidString(d.Content) {
		return d, draftError("content", "contains invalid UTF-8")
	}

	d.Title = norm.NFC.String(strings.TrimSpace(d.Title))
	d.Content = norm.NFC.String(d.Content)

	if n := utf8.RuneCountInString(d.Title); n > limits.MaxTitleLength {
		return d, draftError("title", "length %d exceeds max %d", n, limits.MaxTitleLength)
	}
	if err := checkControl("title", d.Title); err != nil {
		return d, err
	}

	if strings.TrimSpace(d.Content) == "" {
		return d, draftError("content", "is required")
	}
	if len(d.Content) > limits.MaxContentLength {
		return d, draftError("content", "size %d exceeds max %d bytes", len(d.Content), limits.MaxContentLength)
	}
	if err := checkControl("content", d.Content); err != nil {
		return d, err
	}

	return d, nil
}

// checkControl rejects control characters other than tab and line breaks.
func checkControl(field, s string) error {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return draftError(field, "contains control character U+%04X", r)
		}
	}
	return nil
}

// ValidateCredentials applies the account rules the auth service enforces:
// a username of at least MinUsernameLength bytes after trimming and a
// password of at least MinPasswordLength bytes. Lengths are byte counts, as
// the server measures them. The returned credentials carry the trimmed
// username.
func ValidateCredentials(c Credentials) (Credentials, error) {
	c.Username = strings.TrimSpace(c.Username)
	if len(c.Username) < MinUsernameLength {
		return c, &ValidationError{
			Field:   "username",
			Message: fmt.Sprintf("must be at least %d bytes", MinUsernameLength),
			Err:     ErrInvalidCredentials,
		}
	}
	if len(c.Password) < MinPasswordLength {
		return c, &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d bytes", MinPasswordLength),
			Err:     ErrInvalidCredentials,
		}
	}
	return c, nil
}

// resolveQuery merges q into cur. Zero fields of q keep the current value;
// sizes above maxSize are capped.
func resolveQuery(cur ListRequest, q Query, maxSize int) (ListRequest, error) {
	if q.Page < 0 {
		return cur, &ValidationError{Field: "page", Message: "must be at least 1", Err: ErrInvalidFilter}
	}
	if q.Size < 0 {
		return cur, &ValidationError{Field: "size", Message: "must be positive", Err: ErrInvalidFilter}
	}
	if q.Status != "" && !q.Status.Valid() {
		return cur, &ValidationError{Field: "status", Message: fmt.Sprintf("unsupported status %q", q.Status), Err: ErrInvalidFilter}
	}
	if q.Channel != "" && !q.Channel.Valid() {
		return cur, &ValidationError{Field: "channel", Message: fmt.Sprintf("unsupported channel %q", q.Channel), Err: ErrInvalidFilter}
	}

	next := cur
	if q.Page > 0 {
		next.Page = q.Page
	}
	if q.Size > 0 {
		next.Size = q.Size
	}
	if q.Status != "" {
		next.Status = q.Status
	}
	if q.Channel != "" {
		next.Channel = q.Channel
	}
	if next.Size > maxSize {
		next.Size = maxSize
	}
	return next, nil
}
