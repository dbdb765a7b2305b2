package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteBackend persists session records in a SQLite database, surviving
// process restarts. Like MemoryBackend, its method set matches the
// TicketStore backend callbacks.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the session database under dataDir.
func NewSQLiteBackend(dataDir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Get returns the record under key, or nil when absent or expired. Expired
// rows are removed on read.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (*Record, error) {
	var (
		payload string
		expires int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM sessions WHERE session_key = ?`, key,
	).Scan(&payload, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rec := &Record{SessionKey: key, ProtectedPayload: payload}
	if expires > 0 {
		rec.ExpiresAt = time.Unix(expires, 0)
		if time.Now().After(rec.ExpiresAt) {
			_, _ = b.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key)
			return nil, nil
		}
	}
	return rec, nil
}

// Put stores or replaces the record under its session key.
func (b *SQLiteBackend) Put(ctx context.Context, rec *Record) error {
	var expires int64
	if !rec.ExpiresAt.IsZero() {
		expires = rec.ExpiresAt.Unix()
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO sessions (session_key, payload, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		rec.SessionKey, rec.ProtectedPayload, expires)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete removes the record under key.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes every record whose expiry has passed and reports how
// many rows went away.
func (b *SQLiteBackend) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at > 0 AND expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}
