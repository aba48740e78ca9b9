package numbers

import (
	"strings"
	"time"

	"dialops/internal/calls"
)

// OwnedNumber is a phone number the business currently owns at the
// telephony provider.
type OwnedNumber struct {
	SID          string          `json:"sid"`
	PhoneNumber  string          `json:"phoneNumber"`
	FriendlyName string          `json:"friendlyName"`
	DateCreated  time.Time       `json:"dateCreated,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`

	// Role is resolved once at ingestion, not re-derived per aggregation.
	Role Role `json:"role"`
}

// AvailableNumber is a purchasable number returned by a provider search.
type AvailableNumber struct {
	PhoneNumber  string          `json:"phoneNumber"`
	FriendlyName string          `json:"friendlyName"`
	Locality     string          `json:"locality,omitempty"`
	Region       string          `json:"region,omitempty"`
	PostalCode   string          `json:"postalCode,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

// Role is the calling-floor role a number plays.
type Role string

const (
	RoleSetter Role = "setter"
	RoleCloser Role = "closer"
	RoleState  Role = "state"
)

// Area codes the business buys personal lines in, by convention.
const (
	SetterAreaCode = "510"
	CloserAreaCode = "650"
)

// Assignment is the CRM's view of a number: who it is linked to.
type Assignment struct {
	PhoneNumber  string `json:"phoneNumber"`
	FriendlyName string `json:"friendlyName,omitempty"`
	LinkedUserID string `json:"linkedUser,omitempty"`
}

// ResolveRole tags a number with its role. Explicit overrides (keyed by
// normalized phone) win; otherwise the legacy substring convention applies:
// any number containing "510" is a setter line, "650" a closer line,
// everything else a shared state line.
//
// The substring convention predates this service and can misclassify
// numbers that merely contain those digits elsewhere (e.g. +1415510xxxx).
// Overrides exist to pin such numbers; retiring the convention outright
// needs a decision from operations.
func ResolveRole(phoneNumber string, overrides map[string]Role) Role {
	if len(overrides) > 0 {
		if r, ok := overrides[calls.NormalizePhone(phoneNumber)]; ok {
			return r
		}
	}
	if strings.Contains(phoneNumber, SetterAreaCode) {
		return RoleSetter
	}
	if strings.Contains(phoneNumber, CloserAreaCode) {
		return RoleCloser
	}
	return RoleState
}

// IsPersonal reports whether the role denotes a staff member's own line
// rather than a shared state line.
func (r Role) IsPersonal() bool {
	return r == RoleSetter || r == RoleCloser
}
