// Package store is the SQLite persistence of resume: string entries keyed by
// (scope, key), each write stamped with a fresh UUIDv7 version.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/domresume/dbopen"
	"github.com/hazyhaar/domresume/idgen"
)

// Schema is the DDL of the entries table.
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
    scope      TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    version    TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (scope, key)
);
CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(scope, updated_at DESC);
`

// Store is the database handle.
type Store struct {
	DB      *sql.DB
	Version idgen.Generator
}

// Record is one stored entry.
type Record struct {
	Scope     string `json:"scope"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Version   string `json:"version"`
	UpdatedAt int64  `json:"updated_at"`
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an open database that already carries Schema.
func New(db *sql.DB) *Store {
	return &Store{DB: db, Version: idgen.Default}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Get returns the entry, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, scope, key string) (*Record, error) {
	r := &Record{Scope: scope, Key: key}
	err := s.DB.QueryRowContext(ctx, `
		SELECT value, version, updated_at FROM entries WHERE scope = ? AND key = ?`,
		scope, key).Scan(&r.Value, &r.Version, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", scope, key, err)
	}
	return r, nil
}

// Put inserts or replaces an entry and returns it with its new version.
func (s *Store) Put(ctx context.Context, scope, key, value string) (*Record, error) {
	r := &Record{
		Scope:     scope,
		Key:       key,
		Value:     value,
		Version:   s.Version(),
		UpdatedAt: time.Now().UnixMilli(),
	}
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entries (scope, key, value, version, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(scope, key) DO UPDATE SET
				value = excluded.value,
				version = excluded.version,
				updated_at = excluded.updated_at`,
			r.Scope, r.Key, r.Value, r.Version, r.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: put %s/%s: %w", scope, key, err)
	}
	return r, nil
}

// ErrVersionMismatch is returned by PutIfVersion when the entry exists with
// another version.
var ErrVersionMismatch = errors.New("store: version mismatch")

// PutIfVersion replaces an existing entry only while its version is still
// version; an empty version accepts any. It returns (nil, nil) when the entry
// does not exist and ErrVersionMismatch when it moved on.
func (s *Store) PutIfVersion(ctx context.Context, scope, key, value, version string) (*Record, error) {
	r := &Record{
		Scope:     scope,
		Key:       key,
		Value:     value,
		Version:   s.Version(),
		UpdatedAt: time.Now().UnixMilli(),
	}
	var missing bool
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE entries SET value = ?, version = ?, updated_at = ?
			WHERE scope = ? AND key = ? AND (? = '' OR version = ?)`,
			r.Value, r.Version, r.UpdatedAt, scope, key, version, version)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}
		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE scope = ? AND key = ?`, scope, key).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			missing = true
			return nil
		}
		if err != nil {
			return err
		}
		return ErrVersionMismatch
	})
	if errors.Is(err, ErrVersionMismatch) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("store: put %s/%s if version: %w", scope, key, err)
	}
	if missing {
		return nil, nil
	}
	return r, nil
}

// Delete removes an entry and reports whether it existed.
func (s *Store) Delete(ctx context.Context, scope, key string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM entries WHERE scope = ? AND key = ?`, scope, key)
	if err != nil {
		return false, fmt.Errorf("store: delete %s/%s: %w", scope, key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeletePrefix removes every entry of scope whose key starts with prefix.
func (s *Store) DeletePrefix(ctx context.Context, scope, prefix string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM entries WHERE scope = ? AND substr(key, 1, length(?)) = ?`,
		scope, prefix, prefix)
	if err != nil {
		return 0, fmt.Errorf("store: delete prefix %s/%s: %w", scope, prefix, err)
	}
	return res.RowsAffected()
}

// Keys lists the keys of scope starting with prefix, sorted.
func (s *Store) Keys(ctx context.Context, scope, prefix string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT key FROM entries
		WHERE scope = ? AND substr(key, 1, length(?)) = ?
		ORDER BY key`, scope, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("store: keys %s: %w", scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Scopes lists the scopes holding at least one entry.
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT scope FROM entries ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("store: scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var sc string
		if err := rows.Scan(&sc); err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}
