// Package sqlite persists tag history in a local sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tagmill/tagmill/internal/domain/tagging"
)

const schema = `
CREATE TABLE IF NOT EXISTS tag_history (
	id          TEXT PRIMARY KEY,
	timestamp   INTEGER NOT NULL,
	nsvc        TEXT NOT NULL,
	nvr         TEXT NOT NULL DEFAULT '',
	rule_id     TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tag_history_timestamp ON tag_history (timestamp);
CREATE INDEX IF NOT EXISTS idx_tag_history_nsvc ON tag_history (nsvc);
`

// HistoryStore implements tagging.HistoryStore on sqlite. A single
// writer (the history service worker) is assumed; reads may happen
// concurrently.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (creating if needed) the database at path.
func NewHistoryStore(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database %s: %w", path, err)
	}
	// The modernc driver serializes access per connection; a single
	// connection avoids SQLITE_BUSY between the writer and readers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Append inserts records in one transaction.
func (s *HistoryStore) Append(ctx context.Context, records ...tagging.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tag_history (id, timestamp, nsvc, nvr, rule_id, destination, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Timestamp.UnixNano(), r.NSVC, r.NVR,
			r.RuleID, r.Destination, r.Outcome, r.Error,
		); err != nil {
			return fmt.Errorf("insert history record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit records, newest first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]tagging.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, nsvc, nvr, rule_id, destination, outcome, error
		FROM tag_history ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []tagging.Record
	for rows.Next() {
		var r tagging.Record
		var ts int64
		if err := rows.Scan(&r.ID, &ts, &r.NSVC, &r.NVR, &r.RuleID, &r.Destination, &r.Outcome, &r.Error); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		r.Timestamp = time.Unix(0, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Compile-time interface verification.
var _ tagging.HistoryStore = (*HistoryStore)(nil)
