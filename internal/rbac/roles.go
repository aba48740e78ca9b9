package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin can do everything, including number purchase/release and
	// directory syncs.
	RoleAdmin = "admin"

	// RoleOperator runs day-to-day number operations but cannot release
	// numbers or trigger syncs.
	RoleOperator = "operator"

	// RoleViewer gets read-only access to analytics and rosters.
	RoleViewer = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
