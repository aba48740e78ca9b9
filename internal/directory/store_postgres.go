package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"dialops/pkg/utils"
)

// NOTE: This store assumes the following table exists:
//
// CREATE TABLE staff_users (
//     id            UUID PRIMARY KEY,
//     crm_user_id   TEXT NOT NULL UNIQUE,
//     name          TEXT NOT NULL,
//     email         TEXT,
//     role          TEXT,
//     synced_at     TIMESTAMPTZ NOT NULL
// );

// PostgresStore persists the staff directory in Postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]StaffUser, error) {
	const q = `
SELECT id, crm_user_id, name, COALESCE(email, ''), COALESCE(role, ''), synced_at
FROM staff_users
ORDER BY name ASC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []StaffUser
	for rows.Next() {
		var u StaffUser
		if err := rows.Scan(&u.ID, &u.CRMUserID, &u.Name, &u.Email, &u.Role, &u.SyncedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, u StaffUser) (bool, error) {
	if u.CRMUserID == "" {
		return false, errors.New("directory: crm user id is required")
	}

	created := false
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const find = `SELECT id FROM staff_users WHERE crm_user_id = $1 FOR UPDATE`
		var id string
		err := tx.QueryRowContext(ctx, find, u.CRMUserID).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			const insert = `
INSERT INTO staff_users (id, crm_user_id, name, email, role, synced_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
`
			if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), u.CRMUserID, u.Name, u.Email, u.Role, u.SyncedAt); err != nil {
				return err
			}
			created = true
			return nil
		case err != nil:
			return err
		}

		const update = `
UPDATE staff_users
SET name = $2, email = NULLIF($3, ''), role = NULLIF($4, ''), synced_at = $5
WHERE id = $1
`
		_, err = tx.ExecContext(ctx, update, id, u.Name, u.Email, u.Role, u.SyncedAt)
		return err
	})
	return created, err
}
