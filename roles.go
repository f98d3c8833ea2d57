package identity

// Role is the account's role in the marketplace.
type Role string

const (
	// RoleCustomer can browse providers and book appointments.
	RoleCustomer Role = "customer"
	// RoleProvider manages a linked business profile and its listings.
	RoleProvider Role = "provider"
	// RoleAdmin administers accounts and roles.
	RoleAdmin Role = "admin"
)

var roleRank = map[Role]int{
	RoleCustomer: 1,
	RoleProvider: 2,
	RoleAdmin:    3,
}

// ParseRole returns the closed role value for a raw string.
func ParseRole(raw string) (Role, bool) {
	role := Role(raw)
	if role.IsValid() {
		return role, true
	}
	return "", false
}

// IsValid checks if the role is one of the predefined valid roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if the role ranks at or above the minimum required role.
func (r Role) IsAtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	minRank, ok := roleRank[min]
	if !ok {
		return false
	}
	return rank >= minRank
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// AccessPolicy maps (role, resource, action) to an allow decision. The route
// layer consults it before invoking a handler; this core only assigns roles.
type AccessPolicy interface {
	Allows(role Role, resource string, action string) bool
}

// Policy actions understood by the default policy.
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionCreate = "create"
	ActionDelete = "delete"
)

type minRolePolicy map[string]Role

// Allows implements AccessPolicy. Unknown resources deny by default; admins
// pass every check for known resources.
func (p minRolePolicy) Allows(role Role, resource string, action string) bool {
	if !role.IsValid() {
		return false
	}

	min, ok := p[resource+":"+action]
	if !ok {
		return false
	}

	return role.IsAtLeast(min)
}

// DefaultAccessPolicy returns the booking-marketplace policy table. New
// resources must be added here to become reachable at all.
func DefaultAccessPolicy() AccessPolicy {
	return minRolePolicy{
		"booking:view":     RoleCustomer,
		"booking:create":   RoleCustomer,
		"listing:view":     RoleCustomer,
		"listing:edit":     RoleProvider,
		"listing:create":   RoleProvider,
		"listing:delete":   RoleProvider,
		"schedule:view":    RoleProvider,
		"schedule:edit":    RoleProvider,
		"account:view":     RoleAdmin,
		"account:edit":     RoleAdmin,
		"audit:view":       RoleAdmin,
		"role:edit":        RoleAdmin,
		"dashboard:view":   RoleAdmin,
		"dashboard:edit":   RoleAdmin,
		"dashboard:create": RoleAdmin,
		"dashboard:delete": RoleAdmin,
	}
}
