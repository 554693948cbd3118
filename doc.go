// Package inbox is the client side of a two-channel messaging service.
//
// It keeps a signed-in session, a cached page of messages and the unread
// counters of the active user in sync with a remote message API. Personal
// messages are exchanged between users; system messages are notifications
// issued by the platform.
//
// # Basic Usage
//
//	// HTTP transport for the message API
//	svc, err := api.New("https://example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Persist the session in a file
//	st := file.New("/home/me/.config/inbox/session.json")
//
//	client, err := inbox.NewClient(svc, svc, st)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Connect restores a stored session, if any
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	if !client.Session().Active() {
//	    client.Login(ctx, inbox.Credentials{Username: "alice", Password: "secret"})
//	}
//
//	client.Load(ctx, inbox.Query{Channel: inbox.ChannelSystem, Status: inbox.StatusUnread})
//	for _, msg := range client.Mailbox().Items() {
//	    client.MarkAsRead(ctx, msg.ID)
//	}
//
// # Components
//
//   - Session: the active user and token, persisted in a session store
//   - Mailbox: one page of messages plus the filter that produced it
//   - UnreadCounter: unread counts, polled while a session is active
//   - Client: all three wired together over one event bus
//
// Session is the only writer of identity. Mailbox and UnreadCounter observe
// it and reset whenever the user changes; results of requests issued for a
// previous user are discarded.
//
// # Session Stores
//
// The store package defines the key-value contract used to persist the
// session. Implementations:
//   - In-memory (store/memory) - for tests and short-lived processes
//   - File (store/file) - JSON file, optionally sealed with NaCl secretbox
//   - Redis (store/redis) - accepts redis.UniversalClient
//   - PostgreSQL (store/postgres) - accepts *sqlx.DB
//   - MongoDB (store/mongo) - accepts *mongo.Client
//
// # Events
//
// Client publishes typed events through github.com/rbaliyan/event/v3.
// Without WithEventTransport or WithRedisClient they are dropped.
// Subscribe after Connect:
//
//	events := client.Events()
//	events.UnreadCountChanged.Subscribe(ctx, handler)
//
// Available events:
//   - MessageSent - when the server accepted a draft
//   - MessageRead - when the server confirmed a mark-read
//   - UnreadCountChanged - when a refresh returned different counters
//   - SessionChanged - when a user signs in, is restored or signs out
package inbox
