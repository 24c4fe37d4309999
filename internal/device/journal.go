package device

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// JournalEntry is one lifecycle outcome recorded for a device.
type JournalEntry struct {
	ID          string        `json:"id"`
	Serial      Identity      `json:"serial"`
	Type        string        `json:"type"`
	Status      Status        `json:"status,omitempty"`
	Provisioned bool          `json:"provisioned"`
	Degraded    []string      `json:"degraded,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// SQLiteJournal stores lifecycle outcomes in the lifecycle_events table.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates a journal over an open, migrated database.
func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db}
}

// Append inserts entry.
func (j *SQLiteJournal) Append(ctx context.Context, entry JournalEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("journal entry id is required")
	}
	if entry.Serial == "" {
		return fmt.Errorf("journal entry serial is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	provisioned := 0
	if entry.Provisioned {
		provisioned = 1
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events
		 (id, serial, event_type, status, provisioned, degraded, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.Serial),
		entry.Type,
		string(entry.Status),
		provisioned,
		strings.Join(entry.Degraded, ","),
		entry.Duration.Milliseconds(),
		entry.Error,
		entry.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting lifecycle event: %w", err)
	}

	return nil
}

// History returns recent entries for serial, newest first.
// limit defaults to 50 and is capped at 200.
func (j *SQLiteJournal) History(ctx context.Context, serial Identity, limit int) ([]JournalEntry, error) {
	if serial == "" {
		return nil, fmt.Errorf("serial is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, serial, event_type, status, provisioned, degraded, duration_ms, error, created_at
		 FROM lifecycle_events
		 WHERE serial = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		string(serial),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying lifecycle events: %w", err)
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var (
			e           JournalEntry
			status      string
			provisioned int
			degraded    string
			durationMS  int64
			createdAt   int64
		)
		if err := rows.Scan(&e.ID, &e.Serial, &e.Type, &status, &provisioned,
			&degraded, &durationMS, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning lifecycle event: %w", err)
		}
		e.Status = Status(status)
		e.Provisioned = provisioned == 1
		if degraded != "" {
			e.Degraded = strings.Split(degraded, ",")
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lifecycle events: %w", err)
	}

	return entries, nil
}

// Prune deletes entries older than olderThan and returns the number removed.
func (j *SQLiteJournal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).UnixMilli()
	result, err := j.db.ExecContext(ctx,
		"DELETE FROM lifecycle_events WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting lifecycle events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
