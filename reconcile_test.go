package inbox

import (
	"context"
	"testing"
	"time"
)

func TestMarkAsRead(t *testing.T) {
	ctx := context.Background()
	localNow := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	serverAt := time.Date(2024, 3, 1, 8, 59, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return localNow })

	loaded := func(t *testing.T, items []Message) (*Mailbox, *fakeService) {
		t.Helper()
		m, svc := setupMailbox(t, clock)
		svc.listFn = func(context.Context, ListRequest) (*Listing, error) {
			return &Listing{Items: items, Total: int64(len(items))}, nil
		}
		m.Load(ctx, Query{})
		return m, svc
	}

	t.Run("uses the server read time", func(t *testing.T) {
		m, svc := loaded(t, messages(ChannelPersonal, 1, 2))
		svc.markFn = func(_ context.Context, id int64, ch Channel) (*Message, error) {
			at := serverAt
			return &Message{ID: id, Channel: ch, IsRead: true, ReadAt: &at}, nil
		}

		m.MarkAsRead(ctx, 2)

		items := m.Items()
		if items[0].IsRead {
			t.Error("expected other message untouched")
		}
		if !items[1].IsRead || items[1].ReadAt == nil || !items[1].ReadAt.Equal(serverAt) {
			t.Errorf("expected read at %v, got %+v", serverAt, items[1])
		}
	})

	t.Run("falls back to the local clock", func(t *testing.T) {
		m, svc := loaded(t, messages(ChannelPersonal, 1))
		svc.markFn = func(context.Context, int64, Channel) (*Message, error) { return nil, nil }

		m.MarkAsRead(ctx, 1)

		item := m.Items()[0]
		if !item.IsRead || item.ReadAt == nil || !item.ReadAt.Equal(localNow) {
			t.Errorf("expected read at %v, got %+v", localNow, item)
		}
	})

	t.Run("keeps the original read time", func(t *testing.T) {
		first := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
		items := messages(ChannelPersonal, 1)
		items[0].IsRead = true
		items[0].ReadAt = &first
		m, _ := loaded(t, items)

		m.MarkAsRead(ctx, 1)

		item := m.Items()[0]
		if item.ReadAt == nil || !item.ReadAt.Equal(first) {
			t.Errorf("expected read time kept, got %v", item.ReadAt)
		}
	})

	t.Run("sends the current channel", func(t *testing.T) {
		m, svc := setupMailbox(t, clock)
		var got Channel
		svc.markFn = func(_ context.Context, id int64, ch Channel) (*Message, error) {
			got = ch
			return &Message{ID: id, Channel: ch, IsRead: true}, nil
		}
		m.Load(ctx, Query{Channel: ChannelSystem})
		m.MarkAsRead(ctx, 7)
		if got != ChannelSystem {
			t.Errorf("expected system channel, got %q", got)
		}
	})

	t.Run("does not touch an item of another channel", func(t *testing.T) {
		items := append(messages(ChannelSystem, 5), messages(ChannelPersonal, 5)...)
		m, _ := loaded(t, items)

		m.MarkAsRead(ctx, 5)

		got := m.Items()
		if got[0].IsRead {
			t.Error("expected system message untouched")
		}
		if !got[1].IsRead {
			t.Error("expected personal message read")
		}
	})

	t.Run("failure leaves items unchanged", func(t *testing.T) {
		m, svc := loaded(t, messages(ChannelPersonal, 1))
		svc.markFn = func(context.Context, int64, Channel) (*Message, error) {
			return nil, &ServiceError{Op: "mark_read", StatusCode: 404, Err: ErrNotFound}
		}

		m.MarkAsRead(ctx, 1)

		if m.Items()[0].IsRead {
			t.Error("expected message still unread")
		}
		if m.LastError() == "" {
			t.Error("expected error recorded")
		}
	})

	t.Run("refreshes the unread counter", func(t *testing.T) {
		svc := newFakeService()
		counter, _ := NewUnreadCounter(svc, WithAutoStartUnreadCount(false))
		m, _ := NewMailbox(svc, counter)
		user := &User{ID: 1, Username: "alice"}
		counter.SessionChanged(ctx, user)
		m.SessionChanged(ctx, user)

		m.MarkAsRead(ctx, 1)
		if svc.Calls("unread") != 1 {
			t.Errorf("expected one unread refresh, got %d", svc.Calls("unread"))
		}
	})

	t.Run("does nothing without a session", func(t *testing.T) {
		svc := newFakeService()
		m, _ := NewMailbox(svc, nil)
		m.MarkAsRead(ctx, 1)
		if svc.Calls("mark") != 0 {
			t.Errorf("expected no request, got %d", svc.Calls("mark"))
		}
	})

	t.Run("discards a confirmation from the previous session", func(t *testing.T) {
		m, svc := loaded(t, messages(ChannelPersonal, 1))
		started := make(chan struct{})
		release := make(chan struct{})
		svc.markFn = func(_ context.Context, id int64, ch Channel) (*Message, error) {
			close(started)
			<-release
			return &Message{ID: id, Channel: ch, IsRead: true}, nil
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			m.MarkAsRead(ctx, 1)
		}()
		<-started

		m.SessionChanged(ctx, &User{ID: 2, Username: "bob"})
		svc.listFn = func(context.Context, ListRequest) (*Listing, error) {
			return &Listing{Items: messages(ChannelPersonal, 1), Total: 1}, nil
		}
		m.Load(ctx, Query{})
		close(release)
		<-done

		if m.Items()[0].IsRead {
			t.Error("expected the new session's message untouched")
		}
	})
}

func TestMarkedRead(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	m := Message{ID: 1}.MarkedRead(at)
	if !m.IsRead || m.ReadAt == nil || m.ReadAt.Location() != time.UTC {
		t.Errorf("expected UTC read time, got %+v", m)
	}

	again := m.MarkedRead(at.Add(time.Hour))
	if !again.ReadAt.Equal(*m.ReadAt) {
		t.Error("expected read time to be kept")
	}
}
