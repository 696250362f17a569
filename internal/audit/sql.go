package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLSink appends records to the audit_events table created by storage.Migrate.
type SQLSink struct {
	db *sql.DB
}

func NewSQLSink(db *sql.DB) *SQLSink {
	return &SQLSink{db: db}
}

func (s *SQLSink) Write(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (event_id, principal, action, detail, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.Principal, rec.Action, rec.Detail, rec.Outcome, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLSink) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, principal, action, detail, outcome, created_at FROM audit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			created time.Time
		)
		if err := rows.Scan(&rec.EventID, &rec.Principal, &rec.Action, &rec.Detail, &rec.Outcome, &created); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		rec.CreatedAt = created
		out = append(out, rec)
	}
	return out, rows.Err()
}
