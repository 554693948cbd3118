// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rbaliyan/inbox/store"
)

// Factory returns a fresh, unconnected store.
type Factory func(t *testing.T) store.Store

// Corrupter makes key unreadable in a connected store, so that Get must
// return store.ErrMalformed. Pass nil when a backend has no way to hold a
// malformed record.
type Corrupter func(t *testing.T, s store.Store, key string)

// Run exercises the behavior every session store must share.
func Run(t *testing.T, newStore Factory, corrupt Corrupter) {
	t.Helper()

	connected := func(t *testing.T) store.Store {
		t.Helper()
		s := newStore(t)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	}

	t.Run("lifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		if _, err := s.Get(ctx, store.KeyToken); !errors.Is(err, store.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected before Connect, got %v", err)
		}
		if err := s.Connect(ctx); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if err := s.Close(ctx); err != nil {
			t.Errorf("second close should not error, got %v", err)
		}
		if err := s.Set(ctx, store.KeyToken, "x"); !errors.Is(err, store.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected after Close, got %v", err)
		}
	})

	t.Run("absent key", func(t *testing.T) {
		s := connected(t)
		_, err := s.Get(context.Background(), store.KeyUser)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if errors.Is(err, store.ErrMalformed) {
			t.Error("absent key must not report ErrMalformed")
		}
	})

	t.Run("set get remove", func(t *testing.T) {
		ctx := context.Background()
		s := connected(t)

		if err := s.Set(ctx, store.KeyToken, "tok-1"); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if err := s.Set(ctx, store.KeyUser, `{"id":7,"username":"alice"}`); err != nil {
			t.Fatalf("set failed: %v", err)
		}

		got, err := s.Get(ctx, store.KeyToken)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got != "tok-1" {
			t.Errorf("expected tok-1, got %q", got)
		}

		if err := s.Set(ctx, store.KeyToken, "tok-2"); err != nil {
			t.Fatalf("overwrite failed: %v", err)
		}
		if got, _ := s.Get(ctx, store.KeyToken); got != "tok-2" {
			t.Errorf("expected tok-2 after overwrite, got %q", got)
		}

		if err := s.Remove(ctx, store.KeyToken); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if _, err := s.Get(ctx, store.KeyToken); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound after remove, got %v", err)
		}
		if got, err := s.Get(ctx, store.KeyUser); err != nil || got != `{"id":7,"username":"alice"}` {
			t.Errorf("removing one key touched another: %q, %v", got, err)
		}
	})

	t.Run("remove absent key", func(t *testing.T) {
		s := connected(t)
		if err := s.Remove(context.Background(), "never-written"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		s := connected(t)
		if err := s.Set(context.Background(), "", "v"); !errors.Is(err, store.ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("empty value", func(t *testing.T) {
		ctx := context.Background()
		s := connected(t)
		if err := s.Set(ctx, store.KeyToken, ""); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		got, err := s.Get(ctx, store.KeyToken)
		if err != nil {
			t.Fatalf("empty value should be readable, got %v", err)
		}
		if got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		ctx := context.Background()
		s := connected(t)

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := store.KeyToken
				if i%2 == 0 {
					key = store.KeyUser
				}
				if err := s.Set(ctx, key, "v"); err != nil {
					t.Errorf("concurrent set failed: %v", err)
				}
			}(i)
		}
		wg.Wait()

		for _, key := range []string{store.KeyToken, store.KeyUser} {
			if got, err := s.Get(ctx, key); err != nil || got != "v" {
				t.Errorf("%s: got %q, %v", key, got, err)
			}
		}
	})

	if corrupt == nil {
		return
	}

	t.Run("malformed record", func(t *testing.T) {
		ctx := context.Background()
		s := connected(t)

		corrupt(t, s, store.KeyUser)

		_, err := s.Get(ctx, store.KeyUser)
		if !errors.Is(err, store.ErrMalformed) {
			t.Fatalf("expected ErrMalformed, got %v", err)
		}
		if errors.Is(err, store.ErrNotFound) {
			t.Error("malformed record must not report ErrNotFound")
		}

		if err := s.Remove(ctx, store.KeyUser); err != nil {
			t.Fatalf("remove of malformed record failed: %v", err)
		}
		if _, err := s.Get(ctx, store.KeyUser); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound after removing malformed record, got %v", err)
		}
	})

	t.Run("set over malformed record", func(t *testing.T) {
		ctx := context.Background()
		s := connected(t)

		corrupt(t, s, store.KeyToken)

		if err := s.Set(ctx, store.KeyToken, "fresh"); err != nil {
			t.Fatalf("set over malformed record failed: %v", err)
		}
		got, err := s.Get(ctx, store.KeyToken)
		if err != nil || got != "fresh" {
			t.Errorf("expected fresh, got %q, %v", got, err)
		}
	})
}
