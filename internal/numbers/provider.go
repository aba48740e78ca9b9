package numbers

import "context"

// Provider is the telephony side of number lifecycle management.
//
// Rules:
// - No provider SDK calls outside the provider adapter package.
// - Request/response types stay provider-agnostic; adapters map wire shapes.
type Provider interface {
	// ListOwned returns every number on the account. Role is left unset;
	// the service tags roles at ingestion.
	ListOwned(ctx context.Context) ([]OwnedNumber, error)

	// SearchAvailable finds purchasable local numbers in an area code.
	SearchAvailable(ctx context.Context, areaCode string, limit int) ([]AvailableNumber, error)

	// Purchase buys a number. friendlyName falls back to the number itself.
	Purchase(ctx context.Context, phoneNumber, friendlyName string) (OwnedNumber, error)

	// UpdateFriendlyName renames an owned number.
	UpdateFriendlyName(ctx context.Context, sid, friendlyName string) (OwnedNumber, error)

	// Release returns the number to the provider pool.
	Release(ctx context.Context, sid string) error

	// AttachToMessagingService registers a purchased number with the A2P
	// messaging campaign. Callers treat failures as non-fatal.
	AttachToMessagingService(ctx context.Context, sid string) error
}

// AssignmentSource is the CRM side: which numbers exist there and who each
// one is linked to.
type AssignmentSource interface {
	ListAssignments(ctx context.Context) ([]Assignment, error)
}
