package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for inbox events.
const (
	EventNameMessageSent        = "inbox.message.sent"
	EventNameMessageRead        = "inbox.message.read"
	EventNameUnreadCountChanged = "inbox.unread.changed"
	EventNameSessionChanged     = "inbox.session.changed"
)

// MessageSentEvent is published after a draft was accepted by the server.
type MessageSentEvent struct {
	MessageID  int64     `json:"message_id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Channel    Channel   `json:"channel"`
	Title      string    `json:"title,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// MessageReadEvent is published after a mark-read was confirmed by the server.
type MessageReadEvent struct {
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Channel   Channel   `json:"channel"`
	ReadAt    time.Time `json:"read_at"`
}

// UnreadCountChangedEvent is published when a refresh returns counters
// different from the previous ones.
type UnreadCountChangedEvent struct {
	UserID   int64     `json:"user_id"`
	Previous Counters  `json:"previous"`
	Current  Counters  `json:"current"`
	At       time.Time `json:"at"`
}

// SessionChangedEvent is published when a user signs in, is restored, or
// the session is cleared. UserID is zero when the session was cleared.
type SessionChangedEvent struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Session change reasons.
const (
	ReasonLogin    = "login"
	ReasonRegister = "register"
	ReasonRestore  = "restore"
	ReasonClear    = "clear"
)

// Events provides access to per-client event instances.
// Each client creates its own events bound to its own event bus.
//
// Subscribe to events after Connect:
//
//	client.Events().MessageSent.Subscribe(ctx, handler)
//	client.Events().UnreadCountChanged.Subscribe(ctx, handler)
type Events struct {
	MessageSent        event.Event[MessageSentEvent]
	MessageRead        event.Event[MessageReadEvent]
	UnreadCountChanged event.Event[UnreadCountChangedEvent]
	SessionChanged     event.Event[SessionChangedEvent]
}

// newEvents creates event instances with a unique name prefix.
func newEvents(namePrefix string) *Events {
	return &Events{
		MessageSent:        event.New[MessageSentEvent](namePrefix + "." + EventNameMessageSent),
		MessageRead:        event.New[MessageReadEvent](namePrefix + "." + EventNameMessageRead),
		UnreadCountChanged: event.New[UnreadCountChangedEvent](namePrefix + "." + EventNameUnreadCountChanged),
		SessionChanged:     event.New[SessionChangedEvent](namePrefix + "." + EventNameSessionChanged),
	}
}

// registerEvents registers the events with the given bus.
func registerEvents(ctx context.Context, bus *event.Bus, events *Events) error {
	if err := event.Register(ctx, bus, events.MessageSent); err != nil {
		return fmt.Errorf("register MessageSent: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageRead); err != nil {
		return fmt.Errorf("register MessageRead: %w", err)
	}
	if err := event.Register(ctx, bus, events.UnreadCountChanged); err != nil {
		return fmt.Errorf("register UnreadCountChanged: %w", err)
	}
	if err := event.Register(ctx, bus, events.SessionChanged); err != nil {
		return fmt.Errorf("register SessionChanged: %w", err)
	}
	return nil
}

// publish publishes data on the event chosen by pick. Failures go to the
// configured handler and are never returned.
func publish[T any](ctx context.Context, rt *runtime, name string, pick func(*Events) event.Event[T], data T) {
	events := rt.events.Load()
	if events == nil {
		return
	}
	if err := pick(events).Publish(ctx, data); err != nil {
		rt.opts.safeEventPublishFailure(name, err)
	}
}

func (rt *runtime) publishMessageSent(ctx context.Context, e MessageSentEvent) {
	publish(ctx, rt, "MessageSent", func(ev *Events) event.Event[MessageSentEvent] { return ev.MessageSent }, e)
}

func (rt *runtime) publishMessageRead(ctx context.Context, e MessageReadEvent) {
	publish(ctx, rt, "MessageRead", func(ev *Events) event.Event[MessageReadEvent] { return ev.MessageRead }, e)
}

func (rt *runtime) publishUnreadCountChanged(ctx context.Context, e UnreadCountChangedEvent) {
	publish(ctx, rt, "UnreadCountChanged", func(ev *Events) event.Event[UnreadCountChangedEvent] { return ev.UnreadCountChanged }, e)
}

func (rt *runtime) publishSessionChanged(ctx context.Context, e SessionChangedEvent) {
	publish(ctx, rt, "SessionChanged", func(ev *Events) event.Event[SessionChangedEvent] { return ev.SessionChanged }, e)
}
