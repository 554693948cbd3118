package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/channel"
	"github.com/rbaliyan/inbox/store"
	"github.com/rbaliyan/inbox/store/memory"
)

func setupClient(t *testing.T, st store.Store, opts ...Option) (*Client, *fakeService) {
	t.Helper()
	svc := newFakeService()
	opts = append([]Option{WithPollInterval(time.Hour)}, opts...)
	c, err := NewClient(svc, svc, st, opts...)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, svc
}

func TestNewClient(t *testing.T) {
	svc := newFakeService()

	if _, err := NewClient(nil, svc, memory.New()); !errors.Is(err, ErrServiceRequired) {
		t.Errorf("expected ErrServiceRequired, got %v", err)
	}
	if _, err := NewClient(svc, nil, memory.New()); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("expected ErrAuthRequired, got %v", err)
	}
	if _, err := NewClient(svc, svc, nil); !errors.Is(err, ErrStoreRequired) {
		t.Errorf("expected ErrStoreRequired, got %v", err)
	}
}

func TestClientLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newFakeService()
	c, err := NewClient(svc, svc, memory.New())
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	t.Run("login requires connect", func(t *testing.T) {
		_, err := c.Login(ctx, Credentials{Username: "alice", Password: "secret1"})
		if !errors.Is(err, ErrNotConnected) || !errors.Is(err, store.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if c.Events() != nil {
			t.Error("expected no events before connect")
		}
	})

	t.Run("connect", func(t *testing.T) {
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("connect: %v", err)
		}
		if !c.IsConnected() {
			t.Error("expected connected")
		}
		if c.Events() == nil {
			t.Error("expected events after connect")
		}
		if err := c.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
	})

	t.Run("close", func(t *testing.T) {
		if err := c.Close(ctx); err != nil {
			t.Fatalf("close: %v", err)
		}
		if c.IsConnected() {
			t.Error("expected disconnected")
		}
		if err := c.Close(ctx); err != nil {
			t.Errorf("expected second close to be a no-op, got %v", err)
		}
		if _, err := c.Send(ctx, Draft{Channel: ChannelPersonal, ReceiverID: 2, Content: "x"}); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}

func TestClientSessionWiring(t *testing.T) {
	ctx := context.Background()

	t.Run("login starts polling and attaches the token", func(t *testing.T) {
		c, svc := setupClient(t, memory.New())

		if _, err := c.Login(ctx, Credentials{Username: "alice", Password: "secret1"}); err != nil {
			t.Fatalf("login: %v", err)
		}
		if svc.Token() != "token-alice" {
			t.Errorf("expected token attached, got %q", svc.Token())
		}
		if !c.Counter().Running() {
			t.Error("expected polling to start")
		}
		waitFor(t, "first unread refresh", func() bool { return svc.Calls("unread") >= 1 })
	})

	t.Run("logout resets every component", func(t *testing.T) {
		st := memory.New()
		c, svc := setupClient(t, st)
		svc.listFn = func(_ context.Context, req ListRequest) (*Listing, error) {
			return &Listing{Items: messages(req.Channel, 1, 2), Total: 2}, nil
		}
		svc.unreadFn = func(context.Context) (*Counters, error) {
			return &Counters{Personal: 2, Total: 2}, nil
		}

		c.Login(ctx, Credentials{Username: "alice", Password: "secret1"})
		c.Load(ctx, Query{Channel: ChannelSystem})
		waitFor(t, "counters", func() bool { return c.Counter().Counters().Total == 2 })

		c.Logout(ctx)

		if c.Session().Active() {
			t.Error("expected no session")
		}
		if c.Counter().Running() {
			t.Error("expected polling stopped")
		}
		if c.Counter().Counters() != (Counters{}) {
			t.Errorf("expected zero counters, got %+v", c.Counter().Counters())
		}
		v := c.Mailbox().View()
		if len(v.Items) != 0 || v.Channel != ChannelPersonal {
			t.Errorf("expected reset mailbox, got %+v", v)
		}
		if st.Len() != 0 {
			t.Errorf("expected stored session erased, %d keys left", st.Len())
		}
	})

	t.Run("switching users empties the mailbox", func(t *testing.T) {
		c, svc := setupClient(t, memory.New(), WithAutoStartUnreadCount(false))
		svc.listFn = func(_ context.Context, req ListRequest) (*Listing, error) {
			return &Listing{Items: messages(req.Channel, 1), Total: 1}, nil
		}
		c.Login(ctx, Credentials{Username: "alice", Password: "secret1"})
		c.Load(ctx, Query{})

		c.Login(ctx, Credentials{Username: "bob", Password: "secret1"})
		if len(c.Mailbox().Items()) != 0 {
			t.Error("expected alice's messages gone")
		}
	})

	t.Run("auto unread count follows the session", func(t *testing.T) {
		c, _ := setupClient(t, memory.New(), WithAutoStartUnreadCount(false))

		c.StartAutoUnreadCount(0)
		if c.Counter().Running() {
			t.Error("expected no polling without a session")
		}

		c.Login(ctx, Credentials{Username: "alice", Password: "secret1"})
		c.StartAutoUnreadCount(time.Hour)
		if !c.Counter().Running() {
			t.Error("expected polling")
		}
		c.StopAutoUnreadCount()
		if c.Counter().Running() {
			t.Error("expected polling stopped")
		}
	})
}

func TestClientRestore(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	first, _ := NewClient(newFakeService(), newFakeService(), st)
	if err := first.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := first.Login(ctx, Credentials{Username: "bob", Password: "secret1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, svc := setupClient(t, st, WithAutoStartUnreadCount(false))
	u := second.Session().User()
	if u == nil || u.ID != 2 {
		t.Fatalf("expected bob restored on connect, got %v", u)
	}
	if svc.Token() != "token-bob" {
		t.Errorf("expected restored token attached, got %q", svc.Token())
	}
	if !second.Restore(ctx) {
		t.Error("expected restore to keep the session")
	}
}

// eventLog collects delivered event payloads.
type eventLog struct {
	mu       sync.Mutex
	sent     []MessageSentEvent
	read     []MessageReadEvent
	unread   []UnreadCountChangedEvent
	sessions []SessionChangedEvent
}

func (l *eventLog) snapshot() eventLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return eventLog{
		sent:     append([]MessageSentEvent(nil), l.sent...),
		read:     append([]MessageReadEvent(nil), l.read...),
		unread:   append([]UnreadCountChangedEvent(nil), l.unread...),
		sessions: append([]SessionChangedEvent(nil), l.sessions...),
	}
}

func subscribeAll(t *testing.T, ctx context.Context, events *Events) *eventLog {
	t.Helper()
	l := &eventLog{}
	if err := events.MessageSent.Subscribe(ctx, func(_ context.Context, _ event.Event[MessageSentEvent], e MessageSentEvent) error {
		l.mu.Lock()
		l.sent = append(l.sent, e)
		l.mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("subscribe MessageSent: %v", err)
	}
	if err := events.MessageRead.Subscribe(ctx, func(_ context.Context, _ event.Event[MessageReadEvent], e MessageReadEvent) error {
		l.mu.Lock()
		l.read = append(l.read, e)
		l.mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("subscribe MessageRead: %v", err)
	}
	if err := events.UnreadCountChanged.Subscribe(ctx, func(_ context.Context, _ event.Event[UnreadCountChangedEvent], e UnreadCountChangedEvent) error {
		l.mu.Lock()
		l.unread = append(l.unread, e)
		l.mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("subscribe UnreadCountChanged: %v", err)
	}
	if err := events.SessionChanged.Subscribe(ctx, func(_ context.Context, _ event.Event[SessionChangedEvent], e SessionChangedEvent) error {
		l.mu.Lock()
		l.sessions = append(l.sessions, e)
		l.mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("subscribe SessionChanged: %v", err)
	}
	return l
}

func TestClientEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, svc := setupClient(t, memory.New(),
		WithEventTransport(channel.New()),
		WithServiceName("inbox-test"),
		WithAutoStartUnreadCount(false),
	)
	events := c.Events()
	if events == nil {
		t.Fatal("expected events after connect")
	}
	rec := subscribeAll(t, ctx, events)

	var mu sync.Mutex
	var counts Counters
	setCounts := func(n Counters) {
		mu.Lock()
		counts = n
		mu.Unlock()
	}
	svc.mu.Lock()
	svc.unreadFn = func(context.Context) (*Counters, error) {
		mu.Lock()
		defer mu.Unlock()
		out := counts
		return &out, nil
	}
	svc.mu.Unlock()

	t.Run("login", func(t *testing.T) {
		if _, err := c.Login(ctx, Credentials{Username: "alice", Password: "secret1"}); err != nil {
			t.Fatalf("login: %v", err)
		}
		waitFor(t, "login event", func() bool { return len(rec.snapshot().sessions) == 1 })
		got := rec.snapshot().sessions[0]
		if got.Reason != ReasonLogin || got.UserID != 1 || got.Username != "alice" {
			t.Errorf("unexpected login event: %+v", got)
		}
	})

	t.Run("send", func(t *testing.T) {
		msg, err := c.Send(ctx, Draft{Channel: ChannelPersonal, ReceiverID: 2, Title: "hi", Content: "hello"})
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		waitFor(t, "sent event", func() bool { return len(rec.snapshot().sent) == 1 })
		got := rec.snapshot().sent[0]
		if got.MessageID != msg.ID || got.ReceiverID != 2 || got.Channel != ChannelPersonal || got.Title != "hi" {
			t.Errorf("unexpected sent event: %+v", got)
		}
		if got.SentAt.IsZero() {
			t.Error("expected SentAt to be set")
		}
		// Send refreshed the counter, but the counts are still zero.
		if n := svc.Calls("unread"); n != 1 {
			t.Errorf("expected one unread refresh, got %d", n)
		}
	})

	t.Run("mark as read", func(t *testing.T) {
		setCounts(Counters{Personal: 2, System: 1, Total: 3})
		c.MarkAsRead(ctx, 7)
		waitFor(t, "read event", func() bool { return len(rec.snapshot().read) == 1 })
		got := rec.snapshot().read[0]
		if got.MessageID != 7 || got.UserID != 1 || got.Channel != ChannelPersonal {
			t.Errorf("unexpected read event: %+v", got)
		}

		// The confirmed read refreshes the counters. Delivery is ordered, so
		// an event from the unchanged refresh during send would come first.
		waitFor(t, "unread event", func() bool { return len(rec.snapshot().unread) >= 1 })
		u := rec.snapshot().unread[0]
		if u.UserID != 1 || u.Previous != (Counters{}) || u.Current != (Counters{Personal: 2, System: 1, Total: 3}) {
			t.Errorf("unexpected unread event: %+v", u)
		}
	})

	t.Run("unchanged counters publish nothing", func(t *testing.T) {
		c.Counter().Refresh(ctx)

		setCounts(Counters{Personal: 1, System: 1, Total: 2})
		c.Counter().Refresh(ctx)

		// Delivery is ordered, so a spurious event would land before this one.
		want := Counters{Personal: 1, System: 1, Total: 2}
		waitFor(t, "second unread event", func() bool {
			u := rec.snapshot().unread
			return len(u) > 0 && u[len(u)-1].Current == want
		})
		u := rec.snapshot().unread
		if len(u) != 2 {
			t.Fatalf("expected 2 unread events, got %d: %+v", len(u), u)
		}
		if u[1].Previous != (Counters{Personal: 2, System: 1, Total: 3}) {
			t.Errorf("expected previous counters 2/1/3, got %+v", u[1].Previous)
		}
	})

	t.Run("logout", func(t *testing.T) {
		c.Logout(ctx)
		waitFor(t, "clear event", func() bool { return len(rec.snapshot().sessions) == 2 })
		got := rec.snapshot().sessions[1]
		if got.Reason != ReasonClear || got.UserID != 0 {
			t.Errorf("unexpected clear event: %+v", got)
		}
		if got.At.IsZero() {
			t.Error("expected At to be set")
		}
	})

	if svc.Calls("send") != 1 || svc.Calls("mark") != 1 {
		t.Errorf("expected one send and one mark, got send=%d mark=%d", svc.Calls("send"), svc.Calls("mark"))
	}
}
