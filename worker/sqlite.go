package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sw_caches (
  name       TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sw_entries (
  cache_name TEXT NOT NULL,
  key        TEXT NOT NULL,
  status     INTEGER NOT NULL,
  header     TEXT NOT NULL,
  body       BLOB,
  stored_at  INTEGER NOT NULL,
  PRIMARY KEY (cache_name, key)
);`

// SQLiteStorage persists named caches in a SQLite database so the offline
// copy survives restarts.
type SQLiteStorage struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// OpenSQLiteStorage opens or creates the database at path. ":memory:" keeps
// everything in a single in-memory connection.
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("worker: storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("worker: open sqlite db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("worker: ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("worker: apply schema: %w", err)
	}
	return &SQLiteStorage{sqlDB: sqlDB, now: time.Now}, nil
}

// DB exposes the handle for health checks.
func (s *SQLiteStorage) DB() *sql.DB { return s.sqlDB }

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Open returns the named cache, creating it if needed.
func (s *SQLiteStorage) Open(ctx context.Context, name string) (Cache, error) {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sw_caches (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("worker: open cache %q: %w", name, err)
	}
	return &sqliteCache{sqlDB: s.sqlDB, name: name}, nil
}

// Has reports whether the named cache exists.
func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM sw_caches WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("worker: lookup cache %q: %w", name, err)
	}
	return n > 0, nil
}

// Delete removes the named cache and its entries.
func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("worker: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sw_entries WHERE cache_name = ?`, name); err != nil {
		return false, fmt.Errorf("worker: delete entries of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sw_caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("worker: delete cache %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("worker: commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Names lists cache names in order.
func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.sqlDB, `SELECT name FROM sw_caches ORDER BY name`)
}

type sqliteCache struct {
	sqlDB *sql.DB
	name  string
}

func (c *sqliteCache) Match(ctx context.Context, key string) (*CachedResponse, bool, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	err := c.sqlDB.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM sw_entries WHERE cache_name = ? AND key = ?`,
		c.name, key,
	).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("worker: match %q: %w", key, err)
	}

	h := http.Header{}
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return nil, false, fmt.Errorf("worker: decode header of %q: %w", key, err)
	}
	return &CachedResponse{
		Status:   status,
		Header:   h,
		Body:     body,
		StoredAt: time.UnixMilli(storedAt).UTC(),
	}, true, nil
}

func (c *sqliteCache) Put(ctx context.Context, key string, resp *CachedResponse) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("worker: encode header of %q: %w", key, err)
	}
	_, err = c.sqlDB.ExecContext(ctx,
		`INSERT INTO sw_entries (cache_name, key, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_name, key) DO UPDATE SET
		   status = excluded.status,
		   header = excluded.header,
		   body = excluded.body,
		   stored_at = excluded.stored_at`,
		c.name, key, resp.Status, string(header), resp.Body, resp.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("worker: put %q: %w", key, err)
	}
	return nil
}

func (c *sqliteCache) Delete(ctx context.Context, key string) (bool, error) {
	res, err := c.sqlDB.ExecContext(ctx,
		`DELETE FROM sw_entries WHERE cache_name = ? AND key = ?`, c.name, key)
	if err != nil {
		return false, fmt.Errorf("worker: delete %q: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *sqliteCache) Keys(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, c.sqlDB,
		`SELECT key FROM sw_entries WHERE cache_name = ? ORDER BY key`, c.name)
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("worker: query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("worker: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ Storage = (*SQLiteStorage)(nil)
