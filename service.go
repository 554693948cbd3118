package inbox

import "context"

// MessageService is the remote message API.
//
// Implementations are stateless transport facades: they perform no retries
// and no caching. Failures are reported as *ServiceError (network, HTTP,
// authorization) or *ValidationError (payload rejected by the server).
// The api package provides the HTTP implementation.
type MessageService interface {
	// List returns one page of messages for the filter. An empty page is a
	// valid result with a zero total, not an error.
	List(ctx context.Context, req ListRequest) (*Listing, error)

	// Send delivers a draft and returns the stored message.
	Send(ctx context.Context, draft Draft) (*Message, error)

	// MarkRead marks a message as read. Marking an already-read message
	// succeeds and returns it with its read flag set.
	MarkRead(ctx context.Context, id int64, channel Channel) (*Message, error)

	// UnreadCount returns the unread counters of the authenticated user.
	UnreadCount(ctx context.Context) (*Counters, error)
}

// AuthService exchanges credentials for a token and user identity.
type AuthService interface {
	Login(ctx context.Context, creds Credentials) (*AuthResult, error)
	Register(ctx context.Context, creds Credentials) (*AuthResult, error)
}

// TokenSetter is implemented by transports that attach the session token to
// outgoing requests. Session calls SetToken on every identity change, with
// an empty token when the session is cleared.
type TokenSetter interface {
	SetToken(token string)
}

// SessionObserver is notified synchronously, in registration order, each
// time the active user changes. user is nil when the session is cleared.
// Only Session calls observers.
type SessionObserver interface {
	SessionChanged(ctx context.Context, user *User)
}
