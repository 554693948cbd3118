package api

import (
	"fmt"
	"time"

	"github.com/rbaliyan/inbox"
)

// message is a message as it travels on the wire. Timestamps are RFC3339
// strings and empty when unset.
type message struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
	IsRead     bool   `json:"isRead"`
	ReadAt     string `json:"readAt,omitempty"`
	CreatedAt  string `json:"createdAt"`
	Channel    string `json:"channel"`
	Priority   string `json:"priority,omitempty"`
}

func (m message) decode() (inbox.Message, error) {
	out := inbox.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Title:      m.Title,
		Content:    m.Content,
		IsRead:     m.IsRead,
		Channel:    inbox.Channel(m.Channel),
		Priority:   inbox.Priority(m.Priority),
	}

	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return out, fmt.Errorf("message %d createdAt: %w", m.ID, err)
	}
	if created != nil {
		out.CreatedAt = *created
	}

	out.ReadAt, err = parseTime(m.ReadAt)
	if err != nil {
		return out, fmt.Errorf("message %d readAt: %w", m.ID, err)
	}
	return out, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

type listResponse struct {
	Items []message `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

func (r listResponse) decode() (*inbox.Listing, error) {
	items := make([]inbox.Message, 0, len(r.Items))
	for _, m := range r.Items {
		msg, err := m.decode()
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return &inbox.Listing{Items: items, Total: r.Total, Page: r.Page, Size: r.Size}, nil
}

type sendRequest struct {
	Channel    string `json:"channel"`
	SenderID   int64  `json:"senderId,omitempty"`
	ReceiverID int64  `json:"receiverId"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
	Priority   string `json:"priority,omitempty"`
}

type markReadRequest struct {
	Channel string `json:"channel"`
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  inbox.User `json:"user"`
}

// errorBody covers the error payloads the server produces.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Field   string `json:"field"`
}
