package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"github.com/rbaliyan/inbox/store"
)

// Client states for the connection lifecycle.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// Client bundles a Session, a Mailbox and an UnreadCounter that share one
// configuration, one session store and one event bus.
//
// The session drives the other two: the counter and the mailbox are
// registered as observers in that order, so polling has stopped before the
// mailbox empties on sign-out.
type Client struct {
	rt      *runtime
	store   store.Store
	session *Session
	mailbox *Mailbox
	counter *UnreadCounter

	state int32 // stateDisconnected, stateConnecting, or stateConnected
	bus   *event.Bus
}

// NewClient creates a client over the message service, the auth service and
// the session store st. If svc or auth implement TokenSetter they receive
// the credential token on every session change.
// Call Connect before use.
func NewClient(svc MessageService, auth AuthService, st store.Store, opts ...Option) (*Client, error) {
	if svc == nil {
		return nil, ErrServiceRequired
	}
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

	var setters []TokenSetter
	if ts, ok := svc.(TokenSetter); ok {
		setters = append(setters, ts)
	}

	counter := newUnreadCounter(rt, svc)
	mailbox := newMailbox(rt, svc, counter)
	session := newSession(rt, auth, st, setters...)
	session.Observe(counter)
	session.Observe(mailbox)

	return &Client{
		rt:      rt,
		store:   st,
		session: session,
		mailbox: mailbox,
		counter: counter,
	}, nil
}

// Session returns the session of this client.
func (c *Client) Session() *Session { return c.session }

// Mailbox returns the mailbox cache of this client.
func (c *Client) Mailbox() *Mailbox { return c.mailbox }

// Counter returns the unread counter of this client.
func (c *Client) Counter() *UnreadCounter { return c.counter }

// Events returns the client's event instances, or nil before Connect.
func (c *Client) Events() *Events { return c.rt.events.Load() }

// IsConnected returns true if the client is connected and ready.
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.state) == stateConnected
}

// Connect connects the session store, creates the event bus and restores
// any stored session.
func (c *Client) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&c.state, stateConnected)
		} else {
			atomic.StoreInt32(&c.state, stateDisconnected)
		}
	}()

	if err := c.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := c.initEventBus(ctx); err != nil {
		c.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	success = true
	c.rt.logger.Info("inbox client connected")

	c.session.Restore(ctx)
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

func (c *Client) initEventBus(ctx context.Context) error {
	serviceName := c.rt.opts.serviceName
	if serviceName == "" {
		serviceName = "inbox"
	}
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case c.rt.opts.eventTransport != nil:
		c.rt.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(c.rt.opts.eventTransport))
	case c.rt.opts.redisClient != nil:
		c.rt.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(c.rt.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		c.rt.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	events := newEvents(busName)
	if err := registerEvents(ctx, bus, events); err != nil {
		bus.Close(ctx)
		return err
	}

	c.bus = bus
	c.rt.events.Store(events)
	return nil
}

// Close stops polling, waits for in-flight sends and releases the event
// bus and the session store. The session itself is kept in the store so
// the next Connect restores it.
func (c *Client) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	c.counter.Stop()

	timeout := c.rt.opts.shutdownTimeout
	c.rt.logger.Info("waiting for in-flight sends to complete", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.mailbox.waitSends(shutdownCtx); err != nil {
		c.rt.logger.Warn("timeout waiting for in-flight sends, proceeding with shutdown", "error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	}

	c.rt.events.Store(nil)

	// The noop bus holds no resources.
	if c.bus != nil && (c.rt.opts.eventTransport != nil || c.rt.opts.redisClient != nil) {
		if err := c.bus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}
	c.bus = nil

	if err := c.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Client) checkConnected() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Login signs in with creds.
func (c *Client) Login(ctx context.Context, creds Credentials) (*User, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	return c.session.Login(ctx, creds)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, creds Credentials) (*User, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	return c.session.Register(ctx, creds)
}

// Logout ends the session and erases it from the session store.
func (c *Client) Logout(ctx context.Context) {
	c.session.Clear(ctx)
}

// Restore reloads the stored session. It reports whether a session is
// active afterwards.
func (c *Client) Restore(ctx context.Context) bool {
	if c.checkConnected() != nil {
		return false
	}
	return c.session.Restore(ctx)
}

// Load fetches a page of messages. See Mailbox.Load.
func (c *Client) Load(ctx context.Context, q Query) {
	c.mailbox.Load(ctx, q)
}

// Send delivers a draft. See Mailbox.Send.
func (c *Client) Send(ctx context.Context, d Draft) (*Message, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	return c.mailbox.Send(ctx, d)
}

// MarkAsRead marks a message of the current channel as read.
// See Mailbox.MarkAsRead.
func (c *Client) MarkAsRead(ctx context.Context, id int64) {
	c.mailbox.MarkAsRead(ctx, id)
}

// StartAutoUnreadCount starts polling the unread counters. A non-positive
// interval uses the configured poll interval. It does nothing without a
// session or when polling already runs.
func (c *Client) StartAutoUnreadCount(interval time.Duration) {
	if !c.session.Active() {
		return
	}
	c.counter.Start(interval)
}

// StopAutoUnreadCount stops polling the unread counters.
func (c *Client) StopAutoUnreadCount() {
	c.counter.Stop()
}
