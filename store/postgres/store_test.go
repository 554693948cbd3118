package postgres

import (
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rbaliyan/inbox/store"
	"github.com/rbaliyan/inbox/store/storetest"
)

// The store only issues portable SQL, so the suite runs against an
// in-memory SQLite database.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStore(t *testing.T) {
	dbs := make(map[store.Store]*sqlx.DB)
	storetest.Run(t,
		func(t *testing.T) store.Store {
			db := openTestDB(t)
			s := New(db)
			dbs[s] = db
			return s
		},
		func(t *testing.T, s store.Store, key string) {
			db := dbs[s]
			_, err := db.Exec(fmt.Sprintf(
				`INSERT INTO %s (namespace, name, value, updated_at) VALUES (?, ?, NULL, CURRENT_TIMESTAMP)`,
				DefaultTable), DefaultNamespace, key)
			if err != nil {
				t.Fatalf("insert null value: %v", err)
			}
		},
	)
}

func TestNamespaces(t *testing.T) {
	ctx := t.Context()
	db := openTestDB(t)

	alice := New(db, WithNamespace("alice"), WithTable("sessions"))
	bob := New(db, WithNamespace("bob"), WithTable("sessions"))
	for _, s := range []*Store{alice, bob} {
		if err := s.Connect(ctx); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
	}

	_ = alice.Set(ctx, store.KeyToken, "a")
	_ = bob.Set(ctx, store.KeyToken, "b")

	if got, _ := alice.Get(ctx, store.KeyToken); got != "a" {
		t.Errorf("alice: expected a, got %q", got)
	}
	if got, _ := bob.Get(ctx, store.KeyToken); got != "b" {
		t.Errorf("bob: expected b, got %q", got)
	}

	_ = alice.Remove(ctx, store.KeyToken)
	if got, _ := bob.Get(ctx, store.KeyToken); got != "b" {
		t.Errorf("removing alice's key touched bob's: %q", got)
	}
}

func TestWithTableRejectsBadIdentifier(t *testing.T) {
	o := newOptions(WithTable("sessions; DROP TABLE users"))
	if o.table != DefaultTable {
		t.Errorf("expected default table, got %q", o.table)
	}
}

func TestConnectRequiresDB(t *testing.T) {
	s := New(nil)
	if err := s.Connect(t.Context()); err == nil {
		t.Error("expected error for nil db")
	}
}
