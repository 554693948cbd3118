package inbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// MarkAsRead marks message id of the current channel as read.
//
// The cached item is only rewritten after the server confirms; on failure
// the error is recorded and the items are left alone. The read time is the
// one the server reports, falling back to the local clock, and an item that
// is already read keeps its original time. Without a session MarkAsRead
// does nothing. Failures are not returned: the caller may simply retry.
func (m *Mailbox) MarkAsRead(ctx context.Context, id int64) {
	m.mu.RLock()
	if m.user == nil {
		m.mu.RUnlock()
		return
	}
	userID := m.user.ID
	epoch := m.epoch
	channel := m.filter.Channel
	m.mu.RUnlock()

	ctx, endSpan := m.rt.otel.startSpan(ctx, "inbox.Mailbox.MarkAsRead",
		attribute.Int64("message_id", id),
		attribute.String("channel", string(channel)),
	)
	start := time.Now()
	msg, err := m.svc.MarkRead(ctx, id, channel)
	endSpan(err)
	m.rt.otel.record(ctx, opMarkRead, time.Since(start), err, attribute.String("channel", string(channel)))

	if err != nil {
		m.recordError(epoch, err)
		m.rt.logger.Warn("failed to mark message read", "message_id", id, "channel", channel, "error", err)
		return
	}

	readAt := m.rt.opts.now().UTC()
	if msg != nil && msg.ReadAt != nil && !msg.ReadAt.IsZero() {
		readAt = msg.ReadAt.UTC()
	}

	applied, ok := m.markCached(epoch, id, channel, readAt)
	if !ok {
		m.rt.otel.recordDropped(ctx, opMarkRead)
		return
	}

	if m.counter != nil {
		m.counter.Refresh(ctx)
	}

	m.rt.publishMessageRead(ctx, MessageReadEvent{
		MessageID: id,
		UserID:    userID,
		Channel:   channel,
		ReadAt:    applied,
	})
}

// markCached rewrites the one cached item matching id and channel. It
// returns the read time the item ends up with, and false when the session
// changed while the request was in flight.
func (m *Mailbox) markCached(epoch uint64, id int64, channel Channel, readAt time.Time) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		return time.Time{}, false
	}

	for i := range m.items {
		it := m.items[i]
		if it.ID != id || (it.Channel != "" && it.Channel != channel) {
			continue
		}
		if it.IsRead {
			if it.ReadAt != nil {
				return *it.ReadAt, true
			}
			return readAt, true
		}
		m.items[i] = it.MarkedRead(readAt)
		return readAt, true
	}
	return readAt, true
}
