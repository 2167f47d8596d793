// Package audit persists finished analysis sessions. The log is
// append-only: a session is written once when its analyze call completes
// and is never updated or deleted afterwards.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/periop/periop/internal/domain/analysis"
)

const defaultRecent = 20

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	created_ns       INTEGER NOT NULL,
	evidence_version TEXT NOT NULL,
	status           TEXT NOT NULL,
	payload          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_created_ns ON sessions (created_ns DESC);
`

var _ analysis.SessionStore = (*SQLiteStore)(nil)

// SQLiteStore keeps the session log in a local SQLite file. Each row
// carries the full session as JSON next to the columns the log is
// queried by.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the audit database at path, creating the file and
// schema on first use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Append writes one finished session. The primary key rejects duplicate
// session IDs, keeping the log insert-only.
func (s *SQLiteStore) Append(ctx context.Context, session *analysis.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_ns, evidence_version, status, payload)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.CreatedAt.UnixNano(), session.EvidenceVersion, session.Status, string(payload))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*analysis.Session, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM sessions ORDER BY created_ns DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*analysis.Session
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var session analysis.Session
		if err := json.Unmarshal(payload, &session); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, &session)
	}
	return out, rows.Err()
}
