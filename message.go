package inbox

import (
	"time"
)

// Channel is the category a message belongs to.
type Channel string

// Supported channels.
const (
	// ChannelPersonal holds user-to-user messages.
	ChannelPersonal Channel = "personal"
	// ChannelSystem holds platform-originated notifications.
	ChannelSystem Channel = "system"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelPersonal || c == ChannelSystem
}

// Status selects which messages of a channel a listing returns.
type Status string

// Supported listing statuses.
const (
	StatusAll    Status = "all"
	StatusUnread Status = "unread"
	StatusSent   Status = "sent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAll, StatusUnread, StatusSent:
		return true
	}
	return false
}

// Priority is an optional severity attached to a message, mostly used by
// system notifications. The zero value means no priority.
type Priority string

// Supported priorities.
const (
	PriorityInfo     Priority = "info"
	PriorityWarning  Priority = "warning"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is empty or a known priority.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityInfo, PriorityWarning, PriorityCritical:
		return true
	}
	return false
}

// Message is a single message as reported by the message service.
// Only IsRead and ReadAt ever change after creation, and only from unset to set.
type Message struct {
	ID         int64      `json:"id"`
	SenderID   int64      `json:"senderId"`
	ReceiverID int64      `json:"receiverId"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"isRead"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	Channel    Channel    `json:"channel"`
	Priority   Priority   `json:"priority,omitempty"`
}

// MarkedRead returns a copy of m with the read flag set and ReadAt set to at.
// A message that is already read is returned unchanged so its original
// read time is kept.
func (m Message) MarkedRead(at time.Time) Message {
	if m.IsRead {
		return m
	}
	m.IsRead = true
	t := at.UTC()
	m.ReadAt = &t
	return m
}

// ListRequest is the filter state sent to the message service.
type ListRequest struct {
	Page    int     `json:"page"`
	Size    int     `json:"size"`
	Status  Status  `json:"status"`
	Channel Channel `json:"channel"`
}

// Listing is one page of messages for a ListRequest.
// Items are in server order. Page and Size are the values the server
// actually applied and replace whatever the client asked for.
type Listing struct {
	Items []Message `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

// Query overrides parts of the mailbox filter state for a single Load.
// Zero fields keep the current value.
type Query struct {
	Page    int
	Size    int
	Status  Status
	Channel Channel
}

// Counters holds unread message counts.
type Counters struct {
	Personal int64 `json:"personal"`
	System   int64 `json:"system"`
	Total    int64 `json:"total"`
}

// Channel returns the unread count for a single channel.
func (c Counters) Channel(ch Channel) int64 {
	switch ch {
	case ChannelPersonal:
		return c.Personal
	case ChannelSystem:
		return c.System
	}
	return 0
}

// Draft is a message to be sent.
// SenderID may be left zero, in which case the server uses the
// authenticated user.
type Draft struct {
	Channel    Channel  `json:"channel"`
	SenderID   int64    `json:"senderId,omitempty"`
	ReceiverID int64    `json:"receiverId"`
	Title      string   `json:"title,omitempty"`
	Content    string   `json:"content"`
	Priority   Priority `json:"priority,omitempty"`
}

// User identifies an authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Credentials are exchanged for a token by the auth service.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResult is returned by a successful login or registration.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// View is a point-in-time copy of the mailbox state.
type View struct {
	Items   []Message
	Total   int64
	Page    int
	Size    int
	Status  Status
	Channel Channel
	Loading bool
	Sending bool
	Error   string
}

// Filter returns the filter state the view was loaded with.
func (v View) Filter() ListRequest {
	return ListRequest{Page: v.Page, Size: v.Size, Status: v.Status, Channel: v.Channel}
}
