package resume

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domresume/idgen"
	"github.com/hazyhaar/domresume/resume/internal/store"
)

// ErrNotFound is returned by Storage.Get for a missing key.
var ErrNotFound = errors.New("resume: not found")

// Item is one stored value.
type Item struct {
	Key       string
	Value     string
	Version   string
	UpdatedAt time.Time
}

// Storage is a string key/value store, the equivalent of the browser's
// localStorage for one origin.
type Storage interface {
	Get(ctx context.Context, key string) (Item, error)
	Set(ctx context.Context, key, value string) (Item, error)
	Remove(ctx context.Context, key string) error
	// Keys lists the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ErrVersionMismatch is returned by SetIfVersion when the stored version
// moved on.
var ErrVersionMismatch = errors.New("resume: version mismatch")

// VersionedStorage is implemented by storages that can replace a value
// atomically, only while it still carries a given version.
type VersionedStorage interface {
	// SetIfVersion replaces the value of an existing key whose version is
	// version; an empty version accepts any. It fails with ErrNotFound or
	// ErrVersionMismatch.
	SetIfVersion(ctx context.Context, key, value, version string) (Item, error)
}

// SetIfVersion replaces key in st under the rules of
// VersionedStorage.SetIfVersion. Storages that do not implement
// VersionedStorage get a Get then Set, which is not atomic.
func SetIfVersion(ctx context.Context, st Storage, key, value, version string) (Item, error) {
	if vs, ok := st.(VersionedStorage); ok {
		return vs.SetIfVersion(ctx, key, value, version)
	}
	cur, err := st.Get(ctx, key)
	if err != nil {
		return Item{}, err
	}
	if version != "" && cur.Version != version {
		return Item{}, ErrVersionMismatch
	}
	return st.Set(ctx, key, value)
}

// Scopes hands out one Storage per scope (origin).
type Scopes interface {
	Scope(name string) Storage
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]Item
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]Item)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) (Item, error) {
	it := Item{Key: key, Value: value, Version: idgen.New(), UpdatedAt: time.Now()}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return it, nil
}

func (m *MemoryStorage) SetIfVersion(_ context.Context, key, value, version string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[key]
	if !ok {
		return Item{}, ErrNotFound
	}
	if version != "" && cur.Version != version {
		return Item{}, ErrVersionMismatch
	}
	it := Item{Key: key, Value: value, Version: idgen.New(), UpdatedAt: time.Now()}
	m.items[key] = it
	return it, nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// MemoryScopes is an in-process Scopes.
type MemoryScopes struct {
	mu     sync.Mutex
	scopes map[string]*MemoryStorage
}

// NewMemoryScopes returns an empty MemoryScopes.
func NewMemoryScopes() *MemoryScopes {
	return &MemoryScopes{scopes: make(map[string]*MemoryStorage)}
}

func (m *MemoryScopes) Scope(name string) Storage {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[name]
	if !ok {
		s = NewMemoryStorage()
		m.scopes[name] = s
	}
	return s
}

// SQLiteStorage is a Scopes backed by an SQLite database.
type SQLiteStorage struct {
	st *store.Store
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStorage{st: st}, nil
}

// NewSQLite uses an already open database, creating the schema if needed.
func NewSQLite(db *sql.DB) (*SQLiteStorage, error) {
	if _, err := db.Exec(store.Schema); err != nil {
		return nil, err
	}
	return &SQLiteStorage{st: store.New(db)}, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error { return s.st.Close() }

// ScopeNames lists the scopes holding data.
func (s *SQLiteStorage) ScopeNames(ctx context.Context) ([]string, error) {
	return s.st.Scopes(ctx)
}

func (s *SQLiteStorage) Scope(name string) Storage {
	return &sqliteScope{st: s.st, scope: name}
}

type sqliteScope struct {
	st    *store.Store
	scope string
}

func (s *sqliteScope) Get(ctx context.Context, key string) (Item, error) {
	r, err := s.st.Get(ctx, s.scope, key)
	if err != nil {
		return Item{}, err
	}
	if r == nil {
		return Item{}, ErrNotFound
	}
	return itemOf(r), nil
}

func (s *sqliteScope) Set(ctx context.Context, key, value string) (Item, error) {
	r, err := s.st.Put(ctx, s.scope, key, value)
	if err != nil {
		return Item{}, err
	}
	return itemOf(r), nil
}

func (s *sqliteScope) SetIfVersion(ctx context.Context, key, value, version string) (Item, error) {
	r, err := s.st.PutIfVersion(ctx, s.scope, key, value, version)
	if errors.Is(err, store.ErrVersionMismatch) {
		return Item{}, ErrVersionMismatch
	}
	if err != nil {
		return Item{}, err
	}
	if r == nil {
		return Item{}, ErrNotFound
	}
	return itemOf(r), nil
}

func (s *sqliteScope) Remove(ctx context.Context, key string) error {
	_, err := s.st.Delete(ctx, s.scope, key)
	return err
}

// RemovePrefix deletes every key starting with prefix in one statement.
func (s *sqliteScope) RemovePrefix(ctx context.Context, prefix string) error {
	_, err := s.st.DeletePrefix(ctx, s.scope, prefix)
	return err
}

func (s *sqliteScope) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.st.Keys(ctx, s.scope, prefix)
}

func itemOf(r *store.Record) Item {
	return Item{
		Key:       r.Key,
		Value:     r.Value,
		Version:   r.Version,
		UpdatedAt: time.UnixMilli(r.UpdatedAt),
	}
}
