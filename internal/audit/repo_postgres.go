package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE audit_events (
//   id            TEXT PRIMARY KEY,
//   type          TEXT NOT NULL,
//   actor_user_id TEXT NOT NULL DEFAULT '',
//   actor_role    TEXT NOT NULL DEFAULT '',
//   ip_address    TEXT NOT NULL DEFAULT '',
//   session_id    TEXT NOT NULL DEFAULT '',
//   agent         TEXT NOT NULL DEFAULT '',
//   message       TEXT NOT NULL DEFAULT '',
//   metadata      TEXT NOT NULL DEFAULT '',
//   created_at    TIMESTAMPTZ NOT NULL
// );
// CREATE INDEX audit_events_created_idx ON audit_events (created_at DESC);
//
// Insert-only: no UPDATE or DELETE statements may be added here.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertEventSQL = `
INSERT INTO audit_events
(id, type, actor_user_id, actor_role, ip_address, session_id, agent, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.SessionID, e.Agent, e.Message, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
