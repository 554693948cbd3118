package inbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// Mailbox caches one page of the active user's messages together with the
// filter that produced it.
//
// Contents belong to the session that loaded them. A session change
// empties the cache and advances an epoch; completions that started under
// an earlier epoch are discarded.
type Mailbox struct {
	rt      *runtime
	svc     MessageService
	counter *UnreadCounter
	hooks   *hookChain
	sendSem *semaphore.Weighted

	mu        sync.RWMutex
	user      *User
	epoch     uint64
	issued    uint64 // sequence number of the latest issued load
	filter    ListRequest
	items     []Message
	total     int64
	loading   int
	sending   int
	lastError string
}

// NewMailbox creates a mailbox cache over svc. counter, if non-nil, is
// refreshed after every successful send and mark-read.
// The mailbox stays empty until it is told about a session through
// SessionChanged, normally by registering it with Session.Observe.
func NewMailbox(svc MessageService, counter *UnreadCounter, opts ...Option) (*Mailbox, error) {
	if svc == nil {
		return nil, ErrServiceRequired
	}
	rt, err := newRuntime(opts...)
	if err != nil {
		return nil, err
	}
	return newMailbox(rt, svc, counter), nil
}

func newMailbox(rt *runtime, svc MessageService, counter *UnreadCounter) *Mailbox {
	return &Mailbox{
		rt:      rt,
		svc:     svc,
		counter: counter,
		hooks:   newHookChain(rt.opts.hooks, rt.logger),
		sendSem: semaphore.NewWeighted(int64(rt.opts.maxConcurrentSends)),
		filter:  defaultFilter(rt.opts),
	}
}

func defaultFilter(o *options) ListRequest {
	return ListRequest{
		Page:    DefaultPage,
		Size:    o.defaultPageSize,
		Status:  StatusAll,
		Channel: ChannelPersonal,
	}
}

// SessionChanged resets the cache for a new identity. user is nil when the
// session was cleared.
func (m *Mailbox) SessionChanged(_ context.Context, user *User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user == nil {
		m.user = nil
	} else {
		u := *user
		m.user = &u
	}
	m.epoch++
	m.filter = defaultFilter(m.rt.opts)
	m.items = nil
	m.total = 0
	m.loading = 0
	m.sending = 0
	m.lastError = ""
}

// Load fetches a page using the current filter with q applied on top.
//
// Without a session Load does nothing. Invalid overrides are recorded as
// the last error and no request is issued. On success the server's page
// and size replace the requested ones; on failure the previous items stay
// visible and the error is recorded. Load never returns an error.
func (m *Mailbox) Load(ctx context.Context, q Query) {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return
	}
	req, err := resolveQuery(m.filter, q, m.rt.opts.maxPageSize)
	if err != nil {
		m.lastError = errorMessage(err)
		m.mu.Unlock()
		m.rt.logger.Debug("rejected mailbox filter", "error", err)
		return
	}
	epoch := m.epoch
	m.issued++
	seq := m.issued
	m.loading++
	m.mu.Unlock()

	ctx, endSpan := m.rt.otel.startSpan(ctx, "inbox.Mailbox.Load",
		attribute.String("channel", string(req.Channel)),
		attribute.String("status", string(req.Status)),
		attribute.Int("page", req.Page),
	)
	start := time.Now()
	listing, err := m.svc.List(ctx, req)
	endSpan(err)
	m.rt.otel.record(ctx, opList, time.Since(start), err, attribute.String("channel", string(req.Channel)))

	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		m.rt.otel.recordDropped(ctx, opList)
		return
	}
	m.loading--

	if m.rt.opts.latestIssuedWin && seq != m.issued {
		m.rt.otel.recordDropped(ctx, opList)
		return
	}

	if err != nil {
		m.lastError = errorMessage(err)
		m.rt.logger.Warn("failed to load messages",
			"channel", req.Channel, "status", req.Status, "page", req.Page, "error", err)
		return
	}

	m.apply(req, listing)
}

// apply installs a successful listing. Must be called with m.mu held.
func (m *Mailbox) apply(req ListRequest, listing *Listing) {
	if listing == nil {
		listing = &Listing{}
	}

	items := make([]Message, len(listing.Items))
	copy(items, listing.Items)

	total := listing.Total
	if n := int64(len(items)); total < n {
		total = n
	}

	next := req
	if listing.Page > 0 {
		next.Page = listing.Page
	}
	if listing.Size > 0 {
		next.Size = listing.Size
	}

	m.filter = next
	m.items = items
	m.total = total
	m.lastError = ""
}

// Send delivers a draft. The draft is validated locally first and nothing
// is sent when it is invalid.
//
// After the server accepts the message, page 1 is reloaded if the current
// view shows the draft's channel with a status other than sent, and the
// unread counter is refreshed. Failures are recorded and returned.
func (m *Mailbox) Send(ctx context.Context, d Draft) (_ *Message, err error) {
	m.mu.RLock()
	if m.user == nil {
		m.mu.RUnlock()
		return nil, ErrNoSession
	}
	user := *m.user
	epoch := m.epoch
	m.mu.RUnlock()

	ctx, endSpan := m.rt.otel.startSpan(ctx, "inbox.Mailbox.Send",
		attribute.String("channel", string(d.Channel)),
		attribute.Int64("receiver_id", d.ReceiverID),
	)
	start := time.Now()
	defer func() {
		endSpan(err)
		m.rt.otel.record(ctx, opSend, time.Since(start), err, attribute.String("channel", string(d.Channel)))
	}()

	d, err = ValidateDraft(d, m.rt.opts.draftLimits())
	if err != nil {
		m.recordError(epoch, err)
		return nil, err
	}

	if err = m.hooks.beforeSend(ctx, user, d); err != nil {
		m.recordError(epoch, err)
		return nil, err
	}

	if err = m.sendSem.Acquire(ctx, 1); err != nil {
		m.recordError(epoch, err)
		return nil, err
	}
	m.adjustSending(epoch, 1)
	msg, err := m.svc.Send(ctx, d)
	m.adjustSending(epoch, -1)
	m.sendSem.Release(1)

	if err == nil && msg == nil {
		err = &ServiceError{Op: "send", Err: errors.New("empty response")}
	}
	if err != nil {
		m.recordError(epoch, err)
		m.rt.logger.Warn("failed to send message", "channel", d.Channel, "receiver_id", d.ReceiverID, "error", err)
		return nil, err
	}

	m.mu.RLock()
	current := epoch == m.epoch
	reload := current && m.filter.Channel == d.Channel && m.filter.Status != StatusSent
	m.mu.RUnlock()

	if reload {
		m.Load(ctx, Query{Page: 1, Channel: d.Channel})
	}
	if current && m.counter != nil {
		m.counter.Refresh(ctx)
	}

	m.hooks.afterSend(ctx, user, *msg)

	m.rt.publishMessageSent(ctx, MessageSentEvent{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Channel:    msg.Channel,
		Title:      msg.Title,
		SentAt:     msg.CreatedAt,
	})

	out := *msg
	return &out, nil
}

func (m *Mailbox) adjustSending(epoch uint64, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch == m.epoch {
		m.sending += delta
	}
}

// recordError stores err as the last error unless the session changed
// since the operation started.
func (m *Mailbox) recordError(epoch uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch == m.epoch {
		m.lastError = errorMessage(err)
	}
}

// waitSends blocks until no send is in flight or ctx is done.
func (m *Mailbox) waitSends(ctx context.Context) error {
	n := int64(m.rt.opts.maxConcurrentSends)
	if err := m.sendSem.Acquire(ctx, n); err != nil {
		return err
	}
	m.sendSem.Release(n)
	return nil
}

// View returns a snapshot of the mailbox state.
func (m *Mailbox) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]Message, len(m.items))
	copy(items, m.items)
	return View{
		Items:   items,
		Total:   m.total,
		Page:    m.filter.Page,
		Size:    m.filter.Size,
		Status:  m.filter.Status,
		Channel: m.filter.Channel,
		Loading: m.loading > 0,
		Sending: m.sending > 0,
		Error:   m.lastError,
	}
}

// Items returns a copy of the cached messages in server order.
func (m *Mailbox) Items() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]Message, len(m.items))
	copy(items, m.items)
	return items
}

// Filter returns the active filter state.
func (m *Mailbox) Filter() ListRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter
}

// Total returns the number of messages matching the active filter.
func (m *Mailbox) Total() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

// Loading reports whether a load is in flight.
func (m *Mailbox) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading > 0
}

// Sending reports whether a send is in flight.
func (m *Mailbox) Sending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sending > 0
}

// LastError returns the message of the last failure, or "".
func (m *Mailbox) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}
