// Package store persists bancho server state in SQLite: named settings,
// channel definitions seeded into the chat registry at startup, the login
// IP blocklist, and user accounts for the username-resolution collaborator.
// Live session state is never written here; sessions are in-memory only.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a queried row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store persists server state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	name TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	read_capability INTEGER NOT NULL DEFAULT 0,
	write_capability INTEGER NOT NULL DEFAULT 0,
	auto_join INTEGER NOT NULL DEFAULT 0,
	auto_close INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ip_blocklist (
	ip TEXT PRIMARY KEY,
	reason TEXT NOT NULL DEFAULT '',
	created_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	username_unicode TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	privileges INTEGER NOT NULL DEFAULT 1,
	friends TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}

	slog.Debug("sqlite migrations applied")
	return nil
}

// SetSetting upserts one named setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required")
	}
	const q = `
INSERT INTO settings (key, value, updated_at_unix_ms) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_unix_ms = excluded.updated_at_unix_ms
`
	_, err := s.db.ExecContext(ctx, q, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	slog.Debug("setting persisted", "key", key)
	return nil
}

// Setting returns the value of one named setting, or ErrNotFound.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	const q = `SELECT value FROM settings WHERE key = ?`
	var value string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query setting: %w", err)
	}
	return value, nil
}

// ChannelRow is a persisted channel definition, seeded into the chat
// registry at startup alongside any channels declared in the config file.
type ChannelRow struct {
	Name            string
	Title           string
	ReadCapability  uint32
	WriteCapability uint32
	AutoJoin        bool
	AutoClose       bool
}

// UpsertChannel persists one channel definition.
func (s *Store) UpsertChannel(ctx context.Context, ch ChannelRow) error {
	if strings.TrimSpace(ch.Name) == "" {
		return fmt.Errorf("channel name is required")
	}
	const q = `
INSERT INTO channels (name, title, read_capability, write_capability, auto_join, auto_close)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	title = excluded.title,
	read_capability = excluded.read_capability,
	write_capability = excluded.write_capability,
	auto_join = excluded.auto_join,
	auto_close = excluded.auto_close
`
	_, err := s.db.ExecContext(ctx, q,
		ch.Name, ch.Title, ch.ReadCapability, ch.WriteCapability,
		boolToInt(ch.AutoJoin), boolToInt(ch.AutoClose),
	)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	slog.Debug("channel persisted", "name", ch.Name)
	return nil
}

// DeleteChannel removes one channel definition. Deleting a missing channel
// is not an error.
func (s *Store) DeleteChannel(ctx context.Context, name string) error {
	const q = `DELETE FROM channels WHERE name = ?`
	if _, err := s.db.ExecContext(ctx, q, name); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// Channels returns every persisted channel definition ordered by name.
func (s *Store) Channels(ctx context.Context) ([]ChannelRow, error) {
	const q = `
SELECT name, title, read_capability, write_capability, auto_join, auto_close
FROM channels
ORDER BY name
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var out []ChannelRow
	for rows.Next() {
		var ch ChannelRow
		var autoJoin, autoClose int
		if err := rows.Scan(&ch.Name, &ch.Title, &ch.ReadCapability, &ch.WriteCapability, &autoJoin, &autoClose); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.AutoJoin = autoJoin != 0
		ch.AutoClose = autoClose != 0
		out = append(out, ch)
	}
	slog.Debug("channels loaded", "count", len(out))
	return out, rows.Err()
}

// BlockIP adds ip to the login blocklist (idempotent).
func (s *Store) BlockIP(ctx context.Context, ip, reason string) error {
	if strings.TrimSpace(ip) == "" {
		return fmt.Errorf("ip is required")
	}
	const q = `INSERT OR REPLACE INTO ip_blocklist (ip, reason, created_at_unix_ms) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, ip, reason, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("insert blocklist entry: %w", err)
	}
	slog.Info("ip blocked", "ip", ip, "reason", reason)
	return nil
}

// UnblockIP removes ip from the login blocklist.
func (s *Store) UnblockIP(ctx context.Context, ip string) error {
	const q = `DELETE FROM ip_blocklist WHERE ip = ?`
	if _, err := s.db.ExecContext(ctx, q, ip); err != nil {
		return fmt.Errorf("delete blocklist entry: %w", err)
	}
	return nil
}

// BlockedIPs returns every blocklisted address.
func (s *Store) BlockedIPs(ctx context.Context) ([]string, error) {
	const q = `SELECT ip FROM ip_blocklist ORDER BY ip`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query blocklist: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("scan blocklist entry: %w", err)
		}
		out = append(out, ip)
	}
	return out, rows.Err()
}

// UserRow is a persisted user account, the backing record for the
// username-resolution collaborator the login flow queries. Friends is
// stored as a comma-separated id list; account management beyond this
// lookup (registration, renames) happens outside this server.
type UserRow struct {
	UserID          int32
	Username        string
	UsernameUnicode string
	PasswordHash    string
	Privileges      uint32
	Friends         []int32
}

// UpsertUser persists one user account.
func (s *Store) UpsertUser(ctx context.Context, u UserRow) error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if strings.TrimSpace(u.PasswordHash) == "" {
		return fmt.Errorf("password hash is required")
	}
	const q = `
INSERT INTO users (user_id, username, username_unicode, password_hash, privileges, friends)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	username = excluded.username,
	username_unicode = excluded.username_unicode,
	password_hash = excluded.password_hash,
	privileges = excluded.privileges,
	friends = excluded.friends
`
	_, err := s.db.ExecContext(ctx, q,
		u.UserID, u.Username, u.UsernameUnicode, u.PasswordHash, u.Privileges, joinIDs(u.Friends),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	slog.Debug("user persisted", "user_id", u.UserID, "username", u.Username)
	return nil
}

// UserByUsername resolves one account by canonical username, or ErrNotFound.
func (s *Store) UserByUsername(ctx context.Context, username string) (UserRow, error) {
	const q = `
SELECT user_id, username, username_unicode, password_hash, privileges, friends
FROM users
WHERE username = ?
`
	var (
		u       UserRow
		friends string
	)
	err := s.db.QueryRowContext(ctx, q, username).Scan(
		&u.UserID, &u.Username, &u.UsernameUnicode, &u.PasswordHash, &u.Privileges, &friends,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("user not found", "username", username)
			return UserRow{}, ErrNotFound
		}
		return UserRow{}, fmt.Errorf("query user: %w", err)
	}
	u.Friends = splitIDs(friends)
	return u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinIDs(ids []int32) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []int32 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		var id int32
		if _, err := fmt.Sscanf(p, "%d", &id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
