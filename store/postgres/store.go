// Package postgres provides a SQL implementation of store.Store.
// It targets PostgreSQL but only uses portable SQL, so any database/sql
// driver supported by sqlx with INSERT ... ON CONFLICT works.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver for Open
	"github.com/rbaliyan/inbox/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using a SQL table.
type Store struct {
	db        *sqlx.DB
	ownsDB    bool
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new store with the provided database connection.
// Call Connect() to create the table.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Open connects to PostgreSQL using dsn. The returned store owns the
// connection pool and closes it on Close.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	s := New(db, opts...)
	s.ownsDB = true
	return s, nil
}

// Connect pings the database and creates the table.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to SQL session store", "table", s.opts.table, "namespace", s.opts.namespace)
	return nil
}

// Close marks the store as disconnected. The database handle is closed
// only when the store was created with Open.
func (s *Store) Close(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 1, 0) {
		return nil
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// ensureSchema creates the session table.
// The value column is nullable: a NULL value is a malformed record.
func (s *Store) ensureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			value TEXT,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (namespace, name)
		)
	`, s.opts.table)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return "", store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := s.db.Rebind(fmt.Sprintf(
		`SELECT value FROM %s WHERE namespace = ? AND name = ?`, s.opts.table))

	var value sql.NullString
	if err := s.db.GetContext(ctx, &value, query, s.opts.namespace, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("select session value: %w", err)
	}
	if !value.Valid {
		return "", fmt.Errorf("%w: %s is NULL", store.ErrMalformed, key)
	}
	return value.String, nil
}

// Set stores value under key using an atomic upsert.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := s.db.Rebind(fmt.Sprintf(`
		INSERT INTO %s (namespace, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, name)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.opts.table))

	if _, err := s.db.ExecContext(ctx, query, s.opts.namespace, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert session value: %w", err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := s.db.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE namespace = ? AND name = ?`, s.opts.table))

	if _, err := s.db.ExecContext(ctx, query, s.opts.namespace, key); err != nil {
		return fmt.Errorf("delete session value: %w", err)
	}
	return nil
}
