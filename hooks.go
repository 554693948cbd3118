package inbox

import (
	"context"
	"log/slog"
)

// SendHook is called around every send.
// Use it for rate limiting, content policy or audit logging.
type SendHook interface {
	// Name returns the hook identifier used in errors and logs.
	Name() string
	// BeforeSend runs after local validation and before the request is
	// issued. Returning an error aborts the send.
	BeforeSend(ctx context.Context, user User, draft Draft) error
	// AfterSend runs once the server accepted the message. The message is
	// already sent; an error here is logged and does not fail the send.
	AfterSend(ctx context.Context, user User, msg Message) error
}

// HookError represents an error from a send hook.
type HookError struct {
	Hook string
	Op   string
	Err  error
}

func (e *HookError) Error() string {
	return "inbox: hook " + e.Hook + " " + e.Op + ": " + e.Err.Error()
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// hookChain runs hooks in registration order.
type hookChain struct {
	hooks  []SendHook
	logger *slog.Logger
}

func newHookChain(hooks []SendHook, logger *slog.Logger) *hookChain {
	return &hookChain{hooks: hooks, logger: logger}
}

func (c *hookChain) beforeSend(ctx context.Context, user User, draft Draft) error {
	for _, h := range c.hooks {
		if err := h.BeforeSend(ctx, user, draft); err != nil {
			return &HookError{Hook: h.Name(), Op: "BeforeSend", Err: err}
		}
	}
	return nil
}

func (c *hookChain) afterSend(ctx context.Context, user User, msg Message) {
	for _, h := range c.hooks {
		if err := h.AfterSend(ctx, user, msg); err != nil {
			c.logger.Warn("send hook failed after send",
				"hook", h.Name(), "message_id", msg.ID, "error", err)
		}
	}
}
