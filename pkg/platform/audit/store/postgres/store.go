package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	audit "certverify/pkg/platform/audit"
	txcontext "certverify/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Emit joins the
// transaction carried by ctx, so an event commits or rolls back with the
// result it describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Emit writes event, normalizing it first.
func (s *Store) Emit(ctx context.Context, event audit.Event) error {
	event.Normalize(time.Now().UTC())
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, action, result_id, document_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		event.ResultID,
		event.DocumentID,
		payload,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByDocument returns the events of documentID, oldest first.
func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM audit_events
		WHERE document_id = $1
		ORDER BY created_at, id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		var event audit.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
