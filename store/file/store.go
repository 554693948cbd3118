// Package file provides a session store backed by a single JSON file,
// optionally sealed with NaCl secretbox. Writes are atomic: the new content
// goes to a temporary file in the same directory and is renamed into place.
package file

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/inbox/store"
	"golang.org/x/crypto/nacl/secretbox"
)

// Sealing parameters.
const (
	KeySize   = 32
	NonceSize = 24
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on top of a JSON file.
// Thread-safe within one process. Concurrent writers in other processes
// are not coordinated.
type Store struct {
	path      string
	opts      *options
	logger    *slog.Logger
	mu        sync.Mutex
	connected int32
}

// New creates a file store that persists to path.
// The file and its parent directory are created on first write.
func New(path string, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		path:   path,
		opts:   o,
		logger: o.logger,
	}
}

// Path returns the location of the session file.
func (s *Store) Path() string {
	return s.path
}

// Connect checks that the path is usable.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	if s.path == "" {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("file: path is required")
	}
	if info, err := os.Stat(s.path); err == nil && info.IsDir() {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("file: %s is a directory", s.path)
	}

	s.logger.Debug("session file store ready", "path", s.path, "sealed", s.opts.sealKey != nil)
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// Get returns the value stored under key.
// A file that cannot be opened, unsealed or decoded yields store.ErrMalformed
// for every key.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return "", store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
// A malformed file is replaced rather than merged.
func (s *Store) Set(_ context.Context, key, value string) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		if !errors.Is(err, store.ErrMalformed) {
			return err
		}
		s.logger.Warn("replacing malformed session file", "path", s.path, "error", err)
		values = make(map[string]string)
	}
	values[key] = value
	return s.save(values)
}

// Remove deletes key. The file is deleted once it holds no keys.
func (s *Store) Remove(_ context.Context, key string) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		if !errors.Is(err, store.ErrMalformed) {
			return err
		}
		// Nothing in a malformed file is recoverable.
		values = nil
	}
	if values != nil {
		if _, ok := values[key]; !ok {
			return nil
		}
		delete(values, key)
	}
	if len(values) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file: remove %s: %w", s.path, err)
		}
		return nil
	}
	return s.save(values)
}

// load reads the file. A missing file is an empty map.
// Must be called with s.mu held.
func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return make(map[string]string), nil
	}

	if s.opts.sealKey != nil {
		data, err = open(data, s.opts.sealKey)
		if err != nil {
			return nil, err
		}
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	// A JSON null decodes without error but leaves no map to write into.
	if values == nil {
		return nil, fmt.Errorf("%w: session file holds no object", store.ErrMalformed)
	}
	return values, nil
}

// save writes values atomically.
// Must be called with s.mu held.
func (s *Store) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("file: marshal: %w", err)
	}
	if s.opts.sealKey != nil {
		data, err = seal(data, s.opts.sealKey)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, s.opts.dirMode); err != nil {
		return fmt.Errorf("file: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, s.opts.fileMode); err != nil {
		cleanup()
		return fmt.Errorf("file: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("file: rename temp file: %w", err)
	}
	return nil
}

// seal encrypts data as nonce || secretbox(data).
func seal(data []byte, key *[KeySize]byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("file: generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], data, &nonce, key), nil
}

// open reverses seal.
func open(data []byte, key *[KeySize]byte) ([]byte, error) {
	if len(data) < NonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: sealed file too short", store.ErrMalformed)
	}
	var nonce [NonceSize]byte
	copy(nonce[:], data[:NonceSize])
	out, ok := secretbox.Open(nil, data[NonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: cannot unseal session file", store.ErrMalformed)
	}
	return out, nil
}

// GenerateKey returns a random sealing key.
func GenerateKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("file: generate key: %w", err)
	}
	return key, nil
}
