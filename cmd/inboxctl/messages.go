package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/inbox"
	"github.com/spf13/cobra"
)

// errCommand reports a failure the mailbox recorded instead of returning.
var errCommand = errors.New("command failed")

type filterFlags struct {
	channel string
	status  string
	page    int
	size    int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.channel, "channel", "", "personal or system (default personal)")
	cmd.Flags().StringVar(&f.status, "status", "", "all, unread or sent (default all)")
	cmd.Flags().IntVar(&f.page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&f.size, "size", 0, "messages per page")
}

func (f *filterFlags) query() inbox.Query {
	return inbox.Query{
		Page:    f.page,
		Size:    f.size,
		Status:  inbox.Status(f.status),
		Channel: inbox.Channel(f.channel),
	}
}

// load fills the mailbox and turns a recorded failure into an error.
func load(ctx context.Context, a *app, q inbox.Query) error {
	a.client.Load(ctx, q)
	if msg := a.client.Mailbox().LastError(); msg != "" {
		return fmt.Errorf("%w: list messages: %s", errCommand, msg)
	}
	return nil
}

func newListCmd() *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages of a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if _, err := requireSession(a); err != nil {
					return err
				}
				if err := load(ctx, a, flags.query()); err != nil {
					return err
				}
				v := a.client.Mailbox().View()
				if jsonOutput() {
					return printJSON(cmd, v)
				}
				printView(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newSendCmd() *cobra.Command {
	var (
		to       int64
		from     int64
		channel  string
		title    string
		priority string
	)
	cmd := &cobra.Command{
		Use:   "send <content...>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := inbox.Draft{
				Channel:    inbox.Channel(channel),
				SenderID:   from,
				ReceiverID: to,
				Title:      title,
				Content:    strings.Join(args, " "),
				Priority:   inbox.Priority(priority),
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				msg, err := a.client.Send(ctx, draft)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cmd, msg)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent message %d to %d\n", msg.ID, msg.ReceiverID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&to, "to", 0, "receiver id")
	cmd.Flags().Int64Var(&from, "from", 0, "sender id (inferred by the server for personal messages)")
	cmd.Flags().StringVar(&channel, "channel", string(inbox.ChannelPersonal), "personal or system")
	cmd.Flags().StringVar(&title, "title", "", "optional title")
	cmd.Flags().StringVar(&priority, "priority", "", "info, warning or critical")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newReadCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a message as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid message id %q", args[0])
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				if _, err := requireSession(a); err != nil {
					return err
				}
				if err := load(ctx, a, inbox.Query{Channel: inbox.Channel(channel)}); err != nil {
					return err
				}
				a.client.MarkAsRead(ctx, id)
				if msg := a.client.Mailbox().LastError(); msg != "" {
					return fmt.Errorf("%w: mark read: %s", errCommand, msg)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked message %d read\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel of the message (default personal)")
	return cmd
}

func newUnreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Show unread counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if _, err := requireSession(a); err != nil {
					return err
				}
				counter := a.client.Counter()
				counter.Refresh(ctx)
				if msg := counter.LastError(); msg != "" {
					return fmt.Errorf("%w: unread count: %s", errCommand, msg)
				}
				if jsonOutput() {
					return printJSON(cmd, counter.Counters())
				}
				printCounters(cmd.OutOrStdout(), counter.Counters())
				return nil
			})
		},
	}
}

func newWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the unread counters until interrupted",
		Long: `Follow the unread counters until interrupted.

With an event transport configured, changes are taken from the
UnreadCountChanged event. Otherwise the counters are sampled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				user, err := requireSession(a)
				if err != nil {
					return err
				}
				if interval <= 0 {
					interval = a.cfg.Mailbox.PollInterval
				}

				var updates <-chan inbox.Counters
				if a.cfg.Events.Transport != "none" {
					// Subscribe before polling starts so the first change is seen.
					if updates, err = followUnread(ctx, a.client.Events(), user.ID); err != nil {
						return err
					}
				}

				a.client.StartAutoUnreadCount(interval)
				defer a.client.StopAutoUnreadCount()
				return watch(ctx, cmd.OutOrStdout(), a.client.Counter(), updates)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default mailbox.poll_interval)")
	return cmd
}

// followUnread forwards the counters of userID from UnreadCountChanged
// events. It returns a nil channel when the client has no events.
func followUnread(ctx context.Context, events *inbox.Events, userID int64) (<-chan inbox.Counters, error) {
	if events == nil {
		return nil, nil
	}
	ch := make(chan inbox.Counters, 16)
	err := events.UnreadCountChanged.Subscribe(ctx, func(ctx context.Context, _ event.Event[inbox.UnreadCountChangedEvent], e inbox.UnreadCountChangedEvent) error {
		if e.UserID != userID {
			return nil
		}
		select {
		case ch <- e.Current:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to unread changes: %w", err)
	}
	return ch, nil
}

// counterSource is the part of inbox.UnreadCounter watch reads.
type counterSource interface {
	Counters() inbox.Counters
	LastError() string
}

// watch prints the counters every time they change. With updates set the
// counters are sampled once for the first line and then taken from
// updates; otherwise they are sampled on every tick.
func watch(ctx context.Context, w io.Writer, counter counterSource, updates <-chan inbox.Counters) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var (
		last    inbox.Counters
		printed bool
		lastErr string
	)
	show := func(c inbox.Counters) {
		if printed && c == last {
			return
		}
		printed = true
		last = c
		printCounters(w, c)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-updates:
			show(c)
			continue
		case <-ticker.C:
		}

		if msg := counter.LastError(); msg != lastErr {
			lastErr = msg
			if msg != "" {
				fmt.Fprintf(w, "refresh failed: %s\n", msg)
			}
		}
		if updates == nil || !printed {
			show(counter.Counters())
		}
	}
}

func printCounters(w io.Writer, c inbox.Counters) {
	fmt.Fprintf(w, "unread: %d (personal %d, system %d)\n", c.Total, c.Personal, c.System)
}

func printView(w io.Writer, v inbox.View) {
	fmt.Fprintf(w, "%s/%s page %d (%d per page), %d total\n", v.Channel, v.Status, v.Page, v.Size, v.Total)
	if len(v.Items) == 0 {
		fmt.Fprintln(w, "no messages")
		return
	}
	for _, m := range v.Items {
		mark := " "
		if !m.IsRead {
			mark = "*"
		}
		subject := m.Title
		if subject == "" {
			subject = firstLine(m.Content, 60)
		}
		line := fmt.Sprintf("%s %6d  %s  from %d", mark, m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04"), m.SenderID)
		if m.Priority != "" {
			line += " [" + string(m.Priority) + "]"
		}
		fmt.Fprintf(w, "%s  %s\n", line, subject)
	}
}

func firstLine(s string, n int) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
