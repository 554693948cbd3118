package inbox

import (
	"context"
	"sync"
	"time"
)

// UnreadCounter keeps the unread counters of the active user and polls
// them on a fixed interval while a session is active.
//
// Polling is bound to the session: clearing the session stops the loop
// before Session.Clear returns, and a refresh that finds no session zeroes
// the counters and stops the loop instead of issuing a request.
type UnreadCounter struct {
	rt  *runtime
	svc MessageService

	mu        sync.Mutex
	user      *User
	gen       uint64 // advanced whenever counts are zeroed or the user changes
	counts    Counters
	lastError string

	// polling loop
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewUnreadCounter creates an unread counter over svc.
// It stays idle until it is told about a session through SessionChanged.
func NewUnreadCounter(svc MessageService, opts ...Option) (*UnreadCounter, error) {
	if svc == nil {
		return nil, ErrServiceRequired
	}
	rt, err := newRuntime(opts...)
	if err != nil {
		return nil, err
	}
	return newUnreadCounter(rt, svc), nil
}

func newUnreadCounter(rt *runtime, svc MessageService) *UnreadCounter {
	return &UnreadCounter{rt: rt, svc: svc}
}

// SessionChanged stops polling and zeroes the counters when user is nil.
// For a new user it resets the counters and, unless disabled with
// WithAutoStartUnreadCount(false), starts polling.
func (c *UnreadCounter) SessionChanged(_ context.Context, user *User) {
	c.Stop()

	c.mu.Lock()
	if user == nil {
		c.user = nil
	} else {
		u := *user
		c.user = &u
	}
	c.gen++
	c.counts = Counters{}
	c.lastError = ""
	c.mu.Unlock()

	if user != nil && c.rt.opts.autoStartPoll {
		c.Start(0)
	}
}

// Start begins polling: one refresh right away, then one every interval.
// A non-positive interval uses the configured poll interval. Start does
// nothing if the loop is already running.
func (c *UnreadCounter) Start(interval time.Duration) {
	if interval <= 0 {
		interval = c.rt.opts.pollInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.cancel = cancel

	go c.loop(ctx, interval, c.stopCh, c.done)
	c.rt.logger.Debug("unread counter polling started", "interval", interval)
}

// Stop ends polling and waits for the loop to exit. An in-flight refresh
// of the loop is canceled. Stop is idempotent and safe before Start.
func (c *UnreadCounter) Stop() {
	c.mu.Lock()
	done := c.done
	c.halt()
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// halt signals the loop to exit without waiting for it.
// Must be called with c.mu held.
func (c *UnreadCounter) halt() {
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
	c.cancel()
	c.stopCh = nil
	c.done = nil
	c.cancel = nil
	c.rt.logger.Debug("unread counter polling stopped")
}

func (c *UnreadCounter) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	c.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A tick racing with stop must not issue a request.
			select {
			case <-stop:
				return
			default:
			}
			c.Refresh(ctx)
		}
	}
}

// Refresh fetches the counters once. Failures are logged and recorded and
// the previous counters stay in place. Without a session the counters are
// zeroed and polling stops. Results that arrive after the session changed
// are discarded.
func (c *UnreadCounter) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.user == nil {
		c.gen++
		c.counts = Counters{}
		c.halt()
		c.mu.Unlock()
		return
	}
	gen := c.gen
	userID := c.user.ID
	c.mu.Unlock()

	ctx, endSpan := c.rt.otel.startSpan(ctx, "inbox.UnreadCounter.Refresh")
	start := time.Now()
	counts, err := c.svc.UnreadCount(ctx)
	endSpan(err)
	c.rt.otel.record(ctx, opUnread, time.Since(start), err)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.rt.otel.recordDropped(ctx, opUnread)
		return
	}
	if err != nil {
		c.lastError = errorMessage(err)
		c.mu.Unlock()
		if ctx.Err() == nil {
			c.rt.logger.Warn("failed to refresh unread count", "error", err)
		}
		return
	}
	if counts == nil {
		counts = &Counters{}
	}
	prev := c.counts
	c.counts = *counts
	c.lastError = ""
	c.mu.Unlock()

	if prev != *counts {
		c.rt.publishUnreadCountChanged(ctx, UnreadCountChangedEvent{
			UserID:   userID,
			Previous: prev,
			Current:  *counts,
			At:       c.rt.opts.now().UTC(),
		})
	}
}

// Counters returns the counters from the last successful refresh.
func (c *UnreadCounter) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Running reports whether the polling loop is active.
func (c *UnreadCounter) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastError returns the message of the last failed refresh, or "".
func (c *UnreadCounter) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}
