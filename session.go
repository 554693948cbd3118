package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rbaliyan/inbox/retry"
	"github.com/rbaliyan/inbox/store"
	"go.opentelemetry.io/otel/attribute"
)

// Session holds the identity of the active user and its credential token.
// It is the only writer of identity: every change is pushed synchronously
// to the registered observers before the call that caused it returns.
type Session struct {
	rt      *runtime
	auth    AuthService
	store   store.Store
	setters []TokenSetter

	// transition serializes identity changes together with their side
	// effects (token attachment, persistence, observer notification).
	transition sync.Mutex

	mu        sync.RWMutex
	user      *User
	token     string
	loading   int
	lastError string
	observers []SessionObserver
}

// NewSession creates a session backed by auth and the session store st.
// The store must be connected by the caller. If auth also implements
// TokenSetter it receives the token on every change.
func NewSession(auth AuthService, st store.Store, opts ...Option) (*Session, error) {
	if auth == nil {
		return nil, ErrAuthRequired
	}
	if st == nil {
		return nil, ErrStoreRequired
	}
	rt, err := newRuntime(opts...)
	if err != nil {
		return nil, err
	}
	return newSession(rt, auth, st), nil
}

func newSession(rt *runtime, auth AuthService, st store.Store, setters ...TokenSetter) *Session {
	s := &Session{rt: rt, auth: auth, store: st}
	if ts, ok := auth.(TokenSetter); ok {
		s.setters = append(s.setters, ts)
	}
	for _, ts := range setters {
		s.addTokenSetter(ts)
	}
	return s
}

func (s *Session) addTokenSetter(ts TokenSetter) {
	if ts == nil {
		return
	}
	for _, existing := range s.setters {
		if existing == ts {
			return
		}
	}
	s.setters = append(s.setters, ts)
}

// Observe registers o to be notified of identity changes.
// Observers are called in registration order.
func (s *Session) Observe(o SessionObserver) {
	if o == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// User returns a copy of the active user, or nil when there is no session.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token returns the active credential token, or "" when there is no session.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Active reports whether a user is signed in.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// Loading reports whether an authentication or restore is in progress.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// LastError returns the message of the last failure, or "".
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Login exchanges credentials for a session.
func (s *Session) Login(ctx context.Context, creds Credentials) (*User, error) {
	return s.authenticate(ctx, creds, ReasonLogin, s.auth.Login)
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, creds Credentials) (*User, error) {
	return s.authenticate(ctx, creds, ReasonRegister, s.auth.Register)
}

// authenticate runs one credential exchange. On failure the prior session
// is left untouched and the error is both recorded and returned.
func (s *Session) authenticate(ctx context.Context, creds Credentials, reason string,
	exchange func(context.Context, Credentials) (*AuthResult, error)) (_ *User, err error) {

	ctx, endSpan := s.rt.otel.startSpan(ctx, "inbox.Session."+reason)
	start := time.Now()
	defer func() {
		endSpan(err)
		s.rt.otel.record(ctx, opAuth, time.Since(start), err, attribute.String("reason", reason))
	}()

	creds, err = ValidateCredentials(creds)
	if err != nil {
		s.setError(err)
		return nil, err
	}

	s.setLoading(1)
	defer s.setLoading(-1)

	result, err := exchange(ctx, creds)
	if err == nil {
		err = checkAuthResult(result)
	}
	if err != nil {
		s.setError(err)
		s.rt.logger.Warn("authentication failed", "reason", reason, "username", creds.Username, "error", err)
		return nil, err
	}

	user := result.User
	s.activate(ctx, &user, result.Token, reason, true)
	s.rt.logger.Info("session started", "reason", reason, "user_id", user.ID)
	return &user, nil
}

func checkAuthResult(r *AuthResult) error {
	if r == nil {
		return &ServiceError{Op: "auth", Err: errors.New("empty response")}
	}
	if strings.TrimSpace(r.Token) == "" {
		return &ServiceError{Op: "auth", Err: errors.New("response carries no token")}
	}
	if r.User.ID <= 0 {
		return &ServiceError{Op: "auth", Err: errors.New("response carries no user")}
	}
	return nil
}

// activate makes user the active identity.
func (s *Session) activate(ctx context.Context, user *User, token, reason string, persist bool) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	u := *user
	s.user = &u
	s.token = token
	s.lastError = ""
	observers := append([]SessionObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, ts := range s.setters {
		ts.SetToken(token)
	}

	if persist {
		if err := s.persist(ctx, user, token); err != nil {
			// The session stays usable for this process.
			s.rt.logger.Error("failed to persist session", "user_id", user.ID, "error", err)
		}
	}

	for _, o := range observers {
		o.SessionChanged(ctx, &u)
	}

	s.rt.publishSessionChanged(ctx, SessionChangedEvent{
		UserID:   u.ID,
		Username: u.Username,
		Reason:   reason,
		At:       s.rt.opts.now().UTC(),
	})
}

// persist writes both keys, retrying transient store failures.
func (s *Session) persist(ctx context.Context, user *User, token string) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	cfg := s.rt.opts.storeRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.rt.logger.Debug("retrying session store write", "attempt", attempt, "delay", delay, "error", err)
	}

	if err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return s.store.Set(ctx, store.KeyToken, token)
	}); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return s.store.Set(ctx, store.KeyUser, string(data))
	}); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

// Restore rehydrates the session from the session store.
// It never returns an error: an absent record leaves no session, and a
// malformed record is logged, recorded and erased. It reports whether a
// session is active afterwards.
func (s *Session) Restore(ctx context.Context) bool {
	s.setLoading(1)
	defer s.setLoading(-1)

	token, tokenErr := s.store.Get(ctx, store.KeyToken)
	rawUser, userErr := s.store.Get(ctx, store.KeyUser)

	if store.IsNotFound(tokenErr) && store.IsNotFound(userErr) {
		s.rt.logger.Debug("no stored session")
		return s.Active()
	}

	for _, err := range []error{tokenErr, userErr} {
		if err != nil && !store.IsNotFound(err) && !store.IsMalformed(err) {
			// The store is unreachable, which says nothing about the record.
			s.setError(err)
			s.rt.logger.Warn("failed to read stored session", "error", err)
			return s.Active()
		}
	}

	user, err := decodeStoredSession(token, tokenErr, rawUser, userErr, s.rt.opts.now())
	if err != nil {
		s.rt.logger.Warn("discarding malformed stored session", "error", err)
		s.Clear(ctx)
		s.setError(err)
		return false
	}

	s.activate(ctx, user, token, ReasonRestore, false)
	s.rt.logger.Info("session restored", "user_id", user.ID)
	return true
}

// decodeStoredSession validates the two stored keys as one record.
// Any inconsistency is a *StateError.
func decodeStoredSession(token string, tokenErr error, rawUser string, userErr error, now time.Time) (*User, error) {
	if tokenErr != nil {
		return nil, &StateError{Key: store.KeyToken, Err: tokenErr}
	}
	if userErr != nil {
		return nil, &StateError{Key: store.KeyUser, Err: userErr}
	}
	if strings.TrimSpace(token) == "" {
		return nil, &StateError{Key: store.KeyToken, Err: errors.New("empty token")}
	}

	var user User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, &StateError{Key: store.KeyUser, Err: err}
	}
	if user.ID <= 0 {
		return nil, &StateError{Key: store.KeyUser, Err: fmt.Errorf("invalid user id %d", user.ID)}
	}

	if err := checkToken(token, user.ID, now); err != nil {
		return nil, &StateError{Key: store.KeyToken, Err: err}
	}
	return &user, nil
}

// checkToken inspects a JWT without verifying its signature: the server
// does that. Tokens that are not JWTs are opaque and accepted as is.
func checkToken(token string, userID int64, now time.Time) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("token expiry: %w", err)
	}
	if exp != nil && !exp.After(now) {
		return fmt.Errorf("token expired at %s", exp.UTC().Format(time.RFC3339))
	}

	if raw, ok := claims["userId"]; ok {
		id, ok := raw.(float64)
		if !ok || int64(id) != userID {
			return fmt.Errorf("token belongs to user %v, record to user %d", raw, userID)
		}
	}
	return nil
}

// Clear ends the session. It is unconditional and idempotent: the token is
// detached, both stored keys are erased, and every observer has stopped or
// reset by the time Clear returns. Store failures are logged.
func (s *Session) Clear(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	prev := s.user
	s.user = nil
	s.token = ""
	s.lastError = ""
	observers := append([]SessionObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, ts := range s.setters {
		ts.SetToken("")
	}

	for _, key := range []string{store.KeyToken, store.KeyUser} {
		if err := s.store.Remove(ctx, key); err != nil {
			s.rt.logger.Warn("failed to erase stored session", "key", key, "error", err)
		}
	}

	for _, o := range observers {
		o.SessionChanged(ctx, nil)
	}

	if prev != nil {
		s.rt.logger.Info("session cleared", "user_id", prev.ID)
		s.rt.publishSessionChanged(ctx, SessionChangedEvent{Reason: ReasonClear, At: s.rt.opts.now().UTC()})
	}
}

// Logout is Clear under the name presentation layers expect.
func (s *Session) Logout(ctx context.Context) {
	s.Clear(ctx)
}

func (s *Session) setLoading(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading += delta
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = errorMessage(err)
}
