// Package identity models the authenticated caller handed to every workflow
// operation. Session issuance lives in an external provider; this package
// only validates its tokens and exposes the resulting principal.
package identity

// Role is the closed set of role tags the identity provider issues.
type Role string

const (
	RoleAuditor    Role = "auditor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleAgencyUser Role = "agency_user"
)

// Valid reports whether the role tag is one the workflow recognizes.
func (r Role) Valid() bool {
	switch r {
	case RoleAuditor, RoleAdmin, RoleSuperAdmin, RoleAgencyUser:
		return true
	}
	return false
}

// Principal is the authenticated caller. FirmID is set for auditors,
// AgencyID for agency users; both are empty otherwise.
type Principal struct {
	UserID   string
	Role     Role
	FirmID   string
	AgencyID string
}

// IsAdmin reports whether the principal holds the admin capability.
// Super-admins hold every admin capability.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// IsAuditor reports whether the principal may run audit engagements.
func (p Principal) IsAuditor() bool {
	return p.Role == RoleAuditor
}

// IsAgencyUser reports whether the principal acts for a collection agency.
func (p Principal) IsAgencyUser() bool {
	return p.Role == RoleAgencyUser && p.AgencyID != ""
}
