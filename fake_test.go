package inbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeService is an in-process MessageService, AuthService and TokenSetter.
// Each behavior can be replaced through its func field.
type fakeService struct {
	mu    sync.Mutex
	token string
	calls map[string]int

	listReqs []ListRequest
	drafts   []Draft

	listFn     func(ctx context.Context, req ListRequest) (*Listing, error)
	sendFn     func(ctx context.Context, d Draft) (*Message, error)
	markFn     func(ctx context.Context, id int64, ch Channel) (*Message, error)
	unreadFn   func(ctx context.Context) (*Counters, error)
	loginFn    func(ctx context.Context, c Credentials) (*AuthResult, error)
	registerFn func(ctx context.Context, c Credentials) (*AuthResult, error)
}

func newFakeService() *fakeService {
	return &fakeService{calls: make(map[string]int)}
}

func (f *fakeService) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeService) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeService) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeService) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeService) LastListRequest() ListRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listReqs) == 0 {
		return ListRequest{}
	}
	return f.listReqs[len(f.listReqs)-1]
}

func (f *fakeService) List(ctx context.Context, req ListRequest) (*Listing, error) {
	f.mu.Lock()
	f.calls["list"]++
	f.listReqs = append(f.listReqs, req)
	fn := f.listFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &Listing{Page: req.Page, Size: req.Size}, nil
}

func (f *fakeService) Send(ctx context.Context, d Draft) (*Message, error) {
	f.mu.Lock()
	f.calls["send"]++
	f.drafts = append(f.drafts, d)
	n := len(f.drafts)
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, d)
	}
	return &Message{
		ID:         int64(100 + n),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Title:      d.Title,
		Content:    d.Content,
		Channel:    d.Channel,
		Priority:   d.Priority,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeService) MarkRead(ctx context.Context, id int64, ch Channel) (*Message, error) {
	f.count("mark")
	f.mu.Lock()
	fn := f.markFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, ch)
	}
	return &Message{ID: id, Channel: ch, IsRead: true}, nil
}

func (f *fakeService) UnreadCount(ctx context.Context) (*Counters, error) {
	f.count("unread")
	f.mu.Lock()
	fn := f.unreadFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return &Counters{}, nil
}

func (f *fakeService) Login(ctx context.Context, c Credentials) (*AuthResult, error) {
	f.count("login")
	f.mu.Lock()
	fn := f.loginFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, c)
	}
	return authResultFor(c.Username), nil
}

func (f *fakeService) Register(ctx context.Context, c Credentials) (*AuthResult, error) {
	f.count("register")
	f.mu.Lock()
	fn := f.registerFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, c)
	}
	return authResultFor(c.Username), nil
}

// userIDs gives every test username a stable id.
var userIDs = map[string]int64{"alice": 1, "bob": 2, "carol": 3}

func authResultFor(username string) *AuthResult {
	id, ok := userIDs[username]
	if !ok {
		id = 99
	}
	return &AuthResult{
		Token: fmt.Sprintf("token-%s", username),
		User:  User{ID: id, Username: username},
	}
}

// recordingObserver remembers every identity it was told about.
type recordingObserver struct {
	mu    sync.Mutex
	seen  []*User
	order *[]string
	name  string
}

func (o *recordingObserver) SessionChanged(_ context.Context, user *User) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, user)
	if o.order != nil {
		*o.order = append(*o.order, o.name)
	}
}

func (o *recordingObserver) Seen() []*User {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*User(nil), o.seen...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func messages(ch Channel, ids ...int64) []Message {
	out := make([]Message, len(ids))
	for i, id := range ids {
		out[i] = Message{
			ID:         id,
			SenderID:   2,
			ReceiverID: 1,
			Title:      fmt.Sprintf("message %d", id),
			Content:    "hello",
			Channel:    ch,
			CreatedAt:  time.Date(2024, 1, 1, 0, 0, int(id), 0, time.UTC),
		}
	}
	return out
}
