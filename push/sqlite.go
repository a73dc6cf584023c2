package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS push_subscriptions (
  endpoint        TEXT PRIMARY KEY,
  user_id         TEXT NOT NULL,
  p256dh          TEXT NOT NULL,
  auth            TEXT NOT NULL,
  expiration_time INTEGER,
  user_agent      TEXT NOT NULL DEFAULT '',
  created_at      INTEGER NOT NULL,
  updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS push_subscriptions_user ON push_subscriptions (user_id);
CREATE TABLE IF NOT EXISTS notification_preferences (
  user_id     TEXT PRIMARY KEY,
  preferences TEXT NOT NULL,
  updated_at  INTEGER NOT NULL
);`

// SQLiteStore is a Store backed by SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the database at path. ":memory:" keeps
// everything in a single in-memory connection.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("push: store path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("push: open sqlite db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("push: ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("push: apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, now: time.Now}, nil
}

// DB exposes the handle for health checks.
func (s *SQLiteStore) DB() *sql.DB { return s.sqlDB }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.UserID == "" {
		return Record{}, ErrMissingUser
	}
	if err := rec.Subscription.Validate(); err != nil {
		return Record{}, err
	}

	now := s.now().UnixMilli()
	var exp sql.NullInt64
	if rec.Subscription.ExpirationTime != nil {
		exp = sql.NullInt64{Int64: *rec.Subscription.ExpirationTime, Valid: true}
	}

	row := s.sqlDB.QueryRowContext(ctx, `
INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, expiration_time, user_agent, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(endpoint) DO UPDATE SET
  user_id = excluded.user_id,
  p256dh = excluded.p256dh,
  auth = excluded.auth,
  expiration_time = excluded.expiration_time,
  user_agent = excluded.user_agent,
  updated_at = excluded.updated_at
RETURNING created_at, updated_at`,
		rec.Subscription.Endpoint, rec.UserID, rec.Subscription.Keys.P256dh, rec.Subscription.Keys.Auth,
		exp, rec.UserAgent, now, now)

	var created, updated int64
	if err := row.Scan(&created, &updated); err != nil {
		return Record{}, fmt.Errorf("push: save subscription: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, nil
}

func (s *SQLiteStore) ForUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT endpoint, user_id, p256dh, auth, expiration_time, user_agent, created_at, updated_at
FROM push_subscriptions WHERE user_id = ? ORDER BY created_at, endpoint`, userID)
	if err != nil {
		return nil, fmt.Errorf("push: list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec              Record
			exp              sql.NullInt64
			created, updated int64
		)
		if err := rows.Scan(&rec.Subscription.Endpoint, &rec.UserID, &rec.Subscription.Keys.P256dh,
			&rec.Subscription.Keys.Auth, &exp, &rec.UserAgent, &created, &updated); err != nil {
			return nil, fmt.Errorf("push: scan subscription: %w", err)
		}
		if exp.Valid {
			v := exp.Int64
			rec.Subscription.ExpirationTime = &v
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("push: list subscriptions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, endpoint string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if endpoint == "" {
		res, err = s.sqlDB.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = ?`, userID)
	} else {
		res, err = s.sqlDB.ExecContext(ctx,
			`DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`, userID, endpoint)
	}
	if err != nil {
		return 0, fmt.Errorf("push: delete subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) DeleteEndpoint(ctx context.Context, endpoint string) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return false, fmt.Errorf("push: delete endpoint: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) Preferences(ctx context.Context, userID string) (Preferences, error) {
	var raw string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT preferences FROM notification_preferences WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("push: load preferences: %w", err)
	}
	prefs := Preferences{}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return nil, fmt.Errorf("push: decode preferences: %w", err)
	}
	return prefs, nil
}

func (s *SQLiteStore) SetPreferences(ctx context.Context, userID string, prefs Preferences) error {
	if userID == "" {
		return ErrMissingUser
	}
	if prefs == nil {
		prefs = Preferences{}
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("push: encode preferences: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_preferences (user_id, preferences, updated_at) VALUES (?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET preferences = excluded.preferences, updated_at = excluded.updated_at`,
		userID, string(raw), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("push: save preferences: %w", err)
	}
	return nil
}
