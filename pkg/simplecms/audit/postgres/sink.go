// Package postgres records content flow events in a PostgreSQL audit table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Event names written to the action column.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionPublished = "published"
	ActionTrashed   = "trashed"
	ActionCopied    = "copied"
	ActionMoved     = "moved"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cms_audit_event (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	action      TEXT NOT NULL,
	content_id  TEXT NOT NULL,
	version_id  TEXT,
	language    TEXT,
	user_id     TEXT,
	detail      JSONB,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS cms_audit_event_content_idx ON cms_audit_event (content_id, occurred_at);`

// Sink implements simplecms.EventSink by inserting one row per event
type Sink struct {
	db DBTX
}

// New creates a new audit sink
func New(db DBTX) *Sink {
	return &Sink{db: db}
}

// NewWithPool creates a new audit sink with connection pool
func NewWithPool(pool *pgxpool.Pool) *Sink {
	return &Sink{db: pool}
}

// EnsureSchema creates the audit table when it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return handlePostgresError("ensure schema", err)
	}
	return nil
}

func (s *Sink) ContentCreated(ctx context.Context, event simplecms.Event) error {
	return s.insert(ctx, ActionCreated, event)
}

func (s *Sink) ContentUpdated(ctx context.Context, event simplecms.Event) error {
	return s.insert(ctx, ActionUpdated, event)
}

func (s *Sink) ContentPublished(ctx context.Context, event simplecms.Event) error {
	return s.insert(ctx, ActionPublished, event)
}

func (s *Sink) ContentTrashed(ctx context.Context, event simplecms.Event) error {
	return s.insert(ctx, ActionTrashed, event)
}

func (s *Sink) ContentCopied(ctx context.Context, event simplecms.Event) error {
	return s.insert(ctx, ActionCopied, event)
}

func (s *Sink) ContentMoved(ctx context.Context, event simplecms.Event) error {
	return s.insert(ctx, ActionMoved, event)
}

func (s *Sink) insert(ctx context.Context, action string, event simplecms.Event) error {
	query := `
		INSERT INTO cms_audit_event (
			id, kind, action, content_id, version_id, language, user_id, detail, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	var versionID *string
	if event.VersionID != nil {
		hex := event.VersionID.Hex()
		versionID = &hex
	}
	var userID *string
	if !event.UserID.IsZero() {
		hex := event.UserID.Hex()
		userID = &hex
	}
	var detail []byte
	if len(event.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(event.Detail); err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, query,
		uuid.New(), string(event.Kind), action, event.ContentID.Hex(), versionID,
		event.Language, userID, detail, event.OccurredAt)
	if err != nil {
		return handlePostgresError("insert audit event", err)
	}
	return nil
}

// Record is one stored audit row.
type Record struct {
	ID         uuid.UUID
	Kind       string
	Action     string
	ContentID  string
	VersionID  *string
	Language   string
	UserID     *string
	Detail     map[string]interface{}
	OccurredAt time.Time
}

// List returns the audit trail of one content node, oldest first.
func (s *Sink) List(ctx context.Context, contentID string) ([]Record, error) {
	query := `
		SELECT id, kind, action, content_id, version_id, COALESCE(language, ''), user_id, detail, occurred_at
		FROM cms_audit_event WHERE content_id = $1 ORDER BY occurred_at, id`

	rows, err := s.db.Query(ctx, query, contentID)
	if err != nil {
		return nil, handlePostgresError("list audit events", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var detail []byte
		if err := rows.Scan(&r.ID, &r.Kind, &r.Action, &r.ContentID, &r.VersionID,
			&r.Language, &r.UserID, &detail, &r.OccurredAt); err != nil {
			return nil, handlePostgresError("scan audit event", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &r.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list audit events", err)
	}
	return out, nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - call EnsureSchema first")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

var _ simplecms.EventSink = (*Sink)(nil)
