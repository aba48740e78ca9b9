package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor capture is best-effort; do not block number operations on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	PhoneNumber string `json:"phone_number,omitempty" db:"phone_number"`
	NumberSID   string `json:"number_sid,omitempty" db:"number_sid"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeNumberPurchased EventType = "number_purchased"
	EventTypeNumberUpdated   EventType = "number_updated"
	EventTypeNumberReleased  EventType = "number_released"
	EventTypeDirectorySynced EventType = "directory_synced"
)

// Actor identifies who performed an audited operation.
type Actor struct {
	UserID string
	Role   string
}
