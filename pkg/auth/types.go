package auth

import (
	"fmt"
	"strings"
)

// Role is the coarse role assigned to an identity
type Role string

const (
	RoleAdmin   Role = "ADMIN"   // Administrative actions and audit access
	RoleUser    Role = "USER"    // Default role on registration
	RoleCourier Role = "COURIER" // Delivery staff
	RoleSeller  Role = "SELLER"  // Store staff
)

// Roles lists every valid role
var Roles = []Role{RoleAdmin, RoleUser, RoleCourier, RoleSeller}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole parses a role name case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Principal is the authenticated caller attached to a request
type Principal struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Channel identifies how a request authenticates
type Channel string

const (
	ChannelToken   Channel = "token"
	ChannelSession Channel = "session"
	ChannelNone    Channel = "none"
)

// AuthContext holds authenticated caller information for a request
type AuthContext struct {
	Principal *Principal
	Channel   Channel
	SessionID string
}

// HasRole checks if the caller has the given role
func (ac *AuthContext) HasRole(role Role) bool {
	if ac == nil || ac.Principal == nil {
		return false
	}
	return ac.Principal.Role == role
}

// IsAdmin is shorthand for HasRole(RoleAdmin)
func (ac *AuthContext) IsAdmin() bool {
	return ac.HasRole(RoleAdmin)
}

// Email returns the caller's email or "" when unauthenticated
func (ac *AuthContext) Email() string {
	if ac == nil || ac.Principal == nil {
		return ""
	}
	return ac.Principal.Email
}

// NormalizeEmail is the canonical form used for lookups and audit actors
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
