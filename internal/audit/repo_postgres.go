package audit

import (
	"context"
	"database/sql"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE audit_events (
//     id             UUID PRIMARY KEY,
//     type           TEXT NOT NULL,
//     actor_user_id  TEXT,
//     actor_role     TEXT,
//     phone_number   TEXT,
//     number_sid     TEXT,
//     message        TEXT,
//     metadata       TEXT,
//     created_at     TIMESTAMPTZ NOT NULL
// );
//
// No Update/Delete statements exist here on purpose.

// PostgresRepo persists audit events in Postgres.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor_user_id, actor_role, phone_number, number_sid, message, metadata, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.PhoneNumber,
		e.NumberSID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
