package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/inbox/store"
	"github.com/rbaliyan/inbox/store/storetest"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, opts...), mr
}

func TestStore(t *testing.T) {
	servers := make(map[store.Store]*miniredis.Miniredis)
	storetest.Run(t,
		func(t *testing.T) store.Store {
			s, mr := newTestStore(t)
			servers[s] = mr
			return s
		},
		func(t *testing.T, s store.Store, key string) {
			mr := servers[s]
			if _, err := mr.Lpush(DefaultPrefix+key, "not-a-string"); err != nil {
				t.Fatalf("lpush: %v", err)
			}
		},
	)
}

func TestPrefix(t *testing.T) {
	ctx := t.Context()
	s, mr := newTestStore(t, WithPrefix("device-1:"))
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := s.Set(ctx, store.KeyToken, "tok"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := mr.Get("device-1:" + store.KeyToken)
	if err != nil || got != "tok" {
		t.Errorf("expected prefixed key to hold tok, got %q, %v", got, err)
	}
}

func TestTTL(t *testing.T) {
	ctx := t.Context()
	s, mr := newTestStore(t, WithTTL(time.Minute))
	_ = s.Connect(ctx)
	_ = s.Set(ctx, store.KeyToken, "tok")

	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(ctx, store.KeyToken); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestConnectFailsWhenServerDown(t *testing.T) {
	s, mr := newTestStore(t, WithTimeout(500*time.Millisecond))
	mr.Close()
	if err := s.Connect(t.Context()); err == nil {
		t.Error("expected connect to fail")
	}
	// A failed connect leaves the store reusable.
	if err := s.Connect(t.Context()); errors.Is(err, store.ErrAlreadyConnected) {
		t.Error("failed connect must not mark the store connected")
	}
}
