package data

import (
	"context"
	"fmt"
	"time"
)

// Audit actions recorded by the CLI and server.
const (
	AuditActionScore    = "SCORE"
	AuditActionImport   = "IMPORT"
	AuditActionFeedback = "FEEDBACK"
	AuditActionReset    = "RESET"
)

const (
	defaultAuditLimit = 50

	insertAuditSQL = `INSERT INTO audit (action, detail, created_at) VALUES (?, ?, ?)`
	selectAuditSQL = `SELECT id, action, detail, created_at FROM audit ORDER BY id DESC LIMIT ?`
)

// AuditEntry is one recorded action.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InsertAudit records an action with free-form detail.
func (s *Store) InsertAudit(ctx context.Context, action, detail string) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(insertAuditSQL),
		action, detail, time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the newest audit entries, at most limit rows.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectAuditSQL), limit)
	if err != nil {
		return nil, fmt.Errorf("selecting audit entries: %w", err)
	}
	defer rows.Close()

	list := make([]*AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e       AuditEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		ts, err := time.Parse(timeFormat, created)
		if err != nil {
			return nil, fmt.Errorf("parsing audit created_at %q: %w", created, err)
		}
		e.CreatedAt = ts
		list = append(list, &e)
	}
	return list, rows.Err()
}
