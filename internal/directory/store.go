package directory

import "context"

// Store is the persistence contract for the local staff directory.
type Store interface {
	// ListUsers returns all stored users ordered by name.
	ListUsers(ctx context.Context) ([]StaffUser, error)

	// Upsert inserts or updates a user keyed by CRM user ID. Returns true
	// when a new row was created.
	Upsert(ctx context.Context, u StaffUser) (created bool, err error)
}
